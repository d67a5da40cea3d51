// Package authz is the pure decision layer for the sample workflow. It never
// touches storage or transport: callers pass the actor's claims plus whatever
// resource facts they already hold, and enforce the returned verdict
// themselves.
package authz

import "github.com/litholog/rock-registry-api/internal/models"

// Scope names the read views a caller may request.
type Scope string

const (
	// ScopeMine is the caller's own samples, any status.
	ScopeMine Scope = "mine"
	// ScopeCatalog is the verified catalog, archived rows excluded.
	ScopeCatalog Scope = "catalog"
	// ScopeReview is the pending queue, oldest first.
	ScopeReview Scope = "review"
	// ScopeAll is every sample; admin only.
	ScopeAll Scope = "all"
)

// CanSubmit reports whether the role may create samples at all.
func CanSubmit(role models.UserRole) bool {
	return role == models.RoleStudent || role == models.RolePersonnel || role == models.RoleAdmin
}

// SubmitsPreVerified reports whether new samples from this role skip the
// pending queue.
func SubmitsPreVerified(role models.UserRole) bool {
	return role == models.RolePersonnel || role == models.RoleAdmin
}

// CanEdit decides the edit path: owners may edit their own pending samples,
// elevated roles may edit anything.
func CanEdit(actor *models.JWTClaims, ownerID string, status models.SampleStatus) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case models.RolePersonnel, models.RoleAdmin:
		return true
	case models.RoleStudent:
		return actor.UserID == ownerID && status == models.SampleStatusPending
	}
	return false
}

// CanDelete allows owners while pending, and admins unconditionally.
func CanDelete(actor *models.JWTClaims, ownerID string, status models.SampleStatus) bool {
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.UserID == ownerID && status == models.SampleStatusPending
}

// CanDecide gates approve/reject on pending samples.
func CanDecide(role models.UserRole) bool {
	return role == models.RolePersonnel || role == models.RoleAdmin
}

// CanArchive gates the archive side-record.
func CanArchive(role models.UserRole) bool {
	return role == models.RolePersonnel || role == models.RoleAdmin
}

// CanUnarchive is admin-only.
func CanUnarchive(role models.UserRole) bool {
	return role == models.RoleAdmin
}

// CanManageUsers is admin-only.
func CanManageUsers(role models.UserRole) bool {
	return role == models.RoleAdmin
}

// CanRead decides single-sample visibility: own rows any status, anyone's
// verified rows, everything for elevated roles.
func CanRead(actor *models.JWTClaims, ownerID string, status models.SampleStatus) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case models.RolePersonnel, models.RoleAdmin:
		return true
	case models.RoleStudent:
		return actor.UserID == ownerID || status == models.SampleStatusVerified
	}
	return false
}

// ScopeFilter maps (actor, requested scope) to the visibility precondition the
// query layer applies before any user filters. The bool result reports whether
// the scope is permitted for the role at all.
func ScopeFilter(actor *models.JWTClaims, scope Scope) (models.SampleFilter, bool) {
	if actor == nil {
		return models.SampleFilter{}, false
	}

	switch actor.Role {
	case models.RoleStudent:
		switch scope {
		case ScopeMine:
			return models.SampleFilter{OwnerID: actor.UserID}, true
		case ScopeCatalog:
			// Own rows any status, plus the shared verified catalog.
			return models.SampleFilter{OwnerOrVerified: actor.UserID, ExcludeArchived: true}, true
		}
		return models.SampleFilter{}, false

	case models.RolePersonnel:
		switch scope {
		case ScopeReview:
			return models.SampleFilter{Status: models.SampleStatusPending, OldestFirst: true}, true
		case ScopeCatalog:
			return models.SampleFilter{Status: models.SampleStatusVerified, ExcludeArchived: true}, true
		case ScopeMine:
			return models.SampleFilter{OwnerID: actor.UserID}, true
		}
		return models.SampleFilter{}, false

	case models.RoleAdmin:
		switch scope {
		case ScopeReview:
			return models.SampleFilter{Status: models.SampleStatusPending, OldestFirst: true}, true
		case ScopeCatalog:
			return models.SampleFilter{Status: models.SampleStatusVerified, ExcludeArchived: true}, true
		case ScopeMine:
			return models.SampleFilter{OwnerID: actor.UserID}, true
		case ScopeAll:
			return models.SampleFilter{ExcludeArchived: true}, true
		}
		return models.SampleFilter{}, false
	}

	return models.SampleFilter{}, false
}

// ArchiveListFilter scopes archive views: personnel see only their own
// archive actions, admins see everything.
func ArchiveListFilter(actor *models.JWTClaims) (models.ArchiveFilter, bool) {
	if actor == nil {
		return models.ArchiveFilter{}, false
	}
	switch actor.Role {
	case models.RolePersonnel:
		return models.ArchiveFilter{ArchivedBy: actor.UserID}, true
	case models.RoleAdmin:
		return models.ArchiveFilter{}, true
	}
	return models.ArchiveFilter{}, false
}

// ActivityListFilter scopes the activity log: students see their own trail,
// personnel and admins see everything.
func ActivityListFilter(actor *models.JWTClaims) (models.ActivityFilter, bool) {
	if actor == nil {
		return models.ActivityFilter{}, false
	}
	if actor.Role == models.RoleStudent {
		return models.ActivityFilter{UserID: actor.UserID}, true
	}
	return models.ActivityFilter{}, true
}
