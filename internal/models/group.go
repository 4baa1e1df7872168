package models

// Group represents a collaborative group with a shared file namespace.
// Groups are never hard-deleted; membership only grows through invite
// code redemption.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatedDate string   `json:"created_date"`
	CreatorID   string   `json:"creator_id"`
	MemberIDs   []string `json:"member_ids"`

	// InviteCode is generated at creation and immutable afterwards.
	InviteCode string `json:"invite_code"`

	// ItemCount is advisory only; it is not strictly maintained.
	ItemCount int `json:"item_count"`
}

// HasMember reports whether userID is already in the membership set.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddMemberID appends userID to the membership set, keeping it unique.
func (g *Group) AddMemberID(userID string) {
	if g.HasMember(userID) {
		return
	}
	g.MemberIDs = append(g.MemberIDs, userID)
}
