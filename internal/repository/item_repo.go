package repository

import (
	"errors"
	"time"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleVersion means another writer changed the item since it was read.
var ErrStaleVersion = errors.New("item was modified concurrently")

type ItemRepository interface {
	Create(tx *gorm.DB, item *model.Item) error
	FindAll(includeInactive bool) ([]model.Item, error)
	FindByID(id uuid.UUID) (*model.Item, error)
	FindByIDAny(id uuid.UUID) (*model.Item, error)
	UpdateDetails(item *model.Item) error
	SoftDelete(id uuid.UUID, deletedBy string) error
	CountActiveBySupplier(supplierID uuid.UUID) (int64, error)
	CountActiveBySpecification(specID uuid.UUID) (int64, error)

	// Posting helpers run inside the caller's transaction.
	LockForPosting(tx *gorm.DB, ids []uuid.UUID) ([]model.Item, error)
	ApplyStock(tx *gorm.DB, item *model.Item, newOnHand decimal.Decimal, updatedBy string) error
}

type itemRepo struct {
	db *gorm.DB
}

func NewItemRepo(db *gorm.DB) ItemRepository {
	return &itemRepo{db}
}

func (r *itemRepo) Create(tx *gorm.DB, item *model.Item) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Create(item).Error
}

func (r *itemRepo) FindAll(includeInactive bool) ([]model.Item, error) {
	var items []model.Item
	q := r.db.Preload("Supplier").Preload("Specification")
	if includeInactive {
		q = q.Unscoped()
	}
	err := q.Order("name ASC").Find(&items).Error
	return items, err
}

// FindByID returns an active item only.
func (r *itemRepo) FindByID(id uuid.UUID) (*model.Item, error) {
	var item model.Item
	if err := r.db.Preload("Supplier").Preload("Specification").First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDAny also resolves soft-deleted items.
func (r *itemRepo) FindByIDAny(id uuid.UUID) (*model.Item, error) {
	var item model.Item
	if err := r.db.Unscoped().First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateDetails writes catalog fields only; on_hand and version belong to the ledger.
func (r *itemRepo) UpdateDetails(item *model.Item) error {
	return r.db.Model(item).
		Select("name", "type", "specification_id", "supplier_id", "reorder_threshold",
			"rate", "lead_time_days", "rack", "bin", "updated_by", "updated_at").
		Updates(item).Error
}

func (r *itemRepo) SoftDelete(id uuid.UUID, deletedBy string) error {
	res := r.db.Model(&model.Item{}).Where("id = ?", id).Updates(map[string]interface{}{
		"deleted_at": time.Now().UTC(),
		"deleted_by": deletedBy,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *itemRepo) CountActiveBySupplier(supplierID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Model(&model.Item{}).Where("supplier_id = ?", supplierID).Count(&n).Error
	return n, err
}

func (r *itemRepo) CountActiveBySpecification(specID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Model(&model.Item{}).Where("specification_id = ?", specID).Count(&n).Error
	return n, err
}

// LockForPosting loads the items, deleted ones included so callers can tell
// "inactive" from "unknown", ordered by id. On Postgres the rows are locked
// FOR UPDATE until the transaction ends.
func (r *itemRepo) LockForPosting(tx *gorm.DB, ids []uuid.UUID) ([]model.Item, error) {
	q := tx.Unscoped().Where("id IN ?", ids).Order("id ASC")
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var items []model.Item
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ApplyStock writes a new on-hand value guarded by the version read in LockForPosting.
func (r *itemRepo) ApplyStock(tx *gorm.DB, item *model.Item, newOnHand decimal.Decimal, updatedBy string) error {
	res := tx.Model(&model.Item{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"on_hand":    newOnHand,
			"version":    gorm.Expr("version + 1"),
			"updated_by": updatedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	item.OnHand = newOnHand
	item.Version++
	return nil
}
