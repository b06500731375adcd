// Package capabilities stores which principals hold which named capabilities.
//
// Grant and Revoke are idempotent: granting a held capability or revoking a
// missing one is not an error. Both accept codenames and resolve them against
// the seeded capabilities table.
package capabilities

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

var ErrUnknownCapability = errors.New("unknown capability")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Grant(userID uint, codenames ...string) error {
	capabilities, err := r.resolve(codenames)
	if err != nil {
		return err
	}
	if len(capabilities) == 0 {
		return nil
	}

	rows := make([]entities.UserCapability, len(capabilities))
	for i, c := range capabilities {
		rows[i] = entities.UserCapability{UserID: userID, CapabilityID: c.ID}
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *Repository) Revoke(userID uint, codenames ...string) error {
	capabilities, err := r.resolve(codenames)
	if err != nil {
		return err
	}
	if len(capabilities) == 0 {
		return nil
	}

	ids := make([]uint, len(capabilities))
	for i, c := range capabilities {
		ids[i] = c.ID
	}
	return r.db.Where("user_id = ? AND capability_id IN ?", userID, ids).
		Delete(&entities.UserCapability{}).Error
}

func (r *Repository) Has(userID uint, codename string) (bool, error) {
	var count int64
	err := r.db.Model(&entities.UserCapability{}).
		Joins("JOIN capabilities ON capabilities.id = user_capabilities.capability_id").
		Where("user_capabilities.user_id = ? AND capabilities.codename = ?", userID, codename).
		Count(&count).Error
	return count > 0, err
}

// HasAll reports whether the principal holds every one of the codenames.
func (r *Repository) HasAll(userID uint, codenames ...string) (bool, error) {
	if len(codenames) == 0 {
		return true, nil
	}
	var count int64
	err := r.db.Model(&entities.UserCapability{}).
		Joins("JOIN capabilities ON capabilities.id = user_capabilities.capability_id").
		Where("user_capabilities.user_id = ? AND capabilities.codename IN ?", userID, codenames).
		Count(&count).Error
	return count == int64(len(uniq(codenames))), err
}

func (r *Repository) ListForUser(userID uint) ([]string, error) {
	var codenames []string
	err := r.db.Model(&entities.Capability{}).
		Joins("JOIN user_capabilities ON user_capabilities.capability_id = capabilities.id").
		Where("user_capabilities.user_id = ?", userID).
		Order("capabilities.codename ASC").
		Pluck("capabilities.codename", &codenames).Error
	return codenames, err
}

func (r *Repository) resolve(codenames []string) ([]entities.Capability, error) {
	codenames = uniq(codenames)
	if len(codenames) == 0 {
		return nil, nil
	}

	var capabilities []entities.Capability
	if err := r.db.Where("codename IN ?", codenames).Find(&capabilities).Error; err != nil {
		return nil, err
	}
	if len(capabilities) != len(codenames) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCapability, codenames)
	}
	return capabilities, nil
}

func uniq(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
