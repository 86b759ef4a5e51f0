package repository

import (
	"time"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SupplierRepository interface {
	Create(supplier *model.Supplier) error
	FindAll() ([]model.Supplier, error)
	FindByID(id uuid.UUID) (*model.Supplier, error)
	GSTNoTaken(gstNo string, exclude uuid.UUID) (bool, error)
	Update(supplier *model.Supplier) error
	Delete(id uuid.UUID, deletedBy string) error
	RecordPurchase(tx *gorm.DB, id uuid.UUID, at time.Time, rate decimal.NullDecimal) error
}

type supplierRepo struct {
	db *gorm.DB
}

func NewSupplierRepo(db *gorm.DB) SupplierRepository {
	return &supplierRepo{db}
}

func (r *supplierRepo) Create(supplier *model.Supplier) error {
	return r.db.Create(supplier).Error
}

func (r *supplierRepo) FindAll() ([]model.Supplier, error) {
	var suppliers []model.Supplier
	err := r.db.Order("name ASC").Find(&suppliers).Error
	return suppliers, err
}

func (r *supplierRepo) FindByID(id uuid.UUID) (*model.Supplier, error) {
	var supplier model.Supplier
	if err := r.db.First(&supplier, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (r *supplierRepo) GSTNoTaken(gstNo string, exclude uuid.UUID) (bool, error) {
	var n int64
	err := r.db.Unscoped().Model(&model.Supplier{}).
		Where("gst_no = ? AND id <> ?", gstNo, exclude).
		Count(&n).Error
	return n > 0, err
}

func (r *supplierRepo) Update(supplier *model.Supplier) error {
	return r.db.Model(supplier).
		Select("name", "gst_no", "contact", "lead_time_days", "updated_by", "updated_at").
		Updates(supplier).Error
}

func (r *supplierRepo) Delete(id uuid.UUID, deletedBy string) error {
	res := r.db.Model(&model.Supplier{}).Where("id = ?", id).Updates(map[string]interface{}{
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

// RecordPurchase stamps the last purchase date, and the rate when one was given.
func (r *supplierRepo) RecordPurchase(tx *gorm.DB, id uuid.UUID, at time.Time, rate decimal.NullDecimal) error {
	updates := map[string]interface{}{"last_purchase_date": at}
	if rate.Valid {
		updates["last_purchase_rate"] = rate.Decimal
	}
	return tx.Model(&model.Supplier{}).Where("id = ?", id).Updates(updates).Error
}
