package service

import (
	"context"
	"fmt"

	"chatd/internal/domain"
)

// Role and block predicates consulted before any mutating room or message
// operation. The role checks are pure so they can be unit-tested away from
// any I/O; a failed check is a rejection the caller branches on, never a
// retryable error.

// CanManageRoom reports whether the role may change group settings or
// membership.
func CanManageRoom(role string) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}

// CanRemove reports whether a participant with requesterRole may remove a
// participant with targetRole: owners remove admins and members, admins
// remove members only, nobody removes the owner.
func CanRemove(requesterRole, targetRole string) bool {
	if targetRole == domain.RoleOwner {
		return false
	}
	switch requesterRole {
	case domain.RoleOwner:
		return true
	case domain.RoleAdmin:
		return targetRole == domain.RoleMember
	default:
		return false
	}
}

// CanChangeRole reports whether the role may promote or demote admins.
func CanChangeRole(role string) bool {
	return role == domain.RoleOwner
}

// BlockPolicy answers block-relation questions for delivery gating. The
// send path treats a block in either direction as suppressing, uniformly
// for private and group rooms; the reaction path only checks whether the
// message author has blocked the reacting user.
type BlockPolicy struct {
	blocks domain.BlockRepository
}

func NewBlockPolicy(blocks domain.BlockRepository) *BlockPolicy {
	return &BlockPolicy{blocks: blocks}
}

// IsBlockedEither reports whether a block relation exists between the two
// users in either direction.
func (p *BlockPolicy) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	blocked, err := p.blocks.Exists(ctx, a, b)
	if err != nil {
		return false, fmt.Errorf("block lookup: %w", err)
	}
	if blocked {
		return true, nil
	}
	blocked, err = p.blocks.Exists(ctx, b, a)
	if err != nil {
		return false, fmt.Errorf("block lookup: %w", err)
	}
	return blocked, nil
}

// HasBlocked reports whether blocker has blocked blocked, one direction only.
func (p *BlockPolicy) HasBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	return p.blocks.Exists(ctx, blockerID, blockedID)
}
