package repository

import (
	"time"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SpecificationRepository interface {
	Create(spec *model.Specification) error
	FindAll() ([]model.Specification, error)
	FindByID(id uuid.UUID) (*model.Specification, error)
	NameTaken(name string, exclude uuid.UUID) (bool, error)
	Update(spec *model.Specification) error
	Delete(id uuid.UUID, deletedBy string) error
}

type specificationRepo struct {
	db *gorm.DB
}

func NewSpecificationRepo(db *gorm.DB) SpecificationRepository {
	return &specificationRepo{db}
}

func (r *specificationRepo) Create(spec *model.Specification) error {
	return r.db.Create(spec).Error
}

func (r *specificationRepo) FindAll() ([]model.Specification, error) {
	var specs []model.Specification
	err := r.db.Order("name ASC").Find(&specs).Error
	return specs, err
}

func (r *specificationRepo) FindByID(id uuid.UUID) (*model.Specification, error) {
	var spec model.Specification
	if err := r.db.First(&spec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &spec, nil
}

func (r *specificationRepo) NameTaken(name string, exclude uuid.UUID) (bool, error) {
	var n int64
	err := r.db.Unscoped().Model(&model.Specification{}).
		Where("name = ? AND id <> ?", name, exclude).
		Count(&n).Error
	return n > 0, err
}

func (r *specificationRepo) Update(spec *model.Specification) error {
	return r.db.Model(spec).
		Select("name", "description", "updated_by", "updated_at").
		Updates(spec).Error
}

func (r *specificationRepo) Delete(id uuid.UUID, deletedBy string) error {
	res := r.db.Model(&model.Specification{}).Where("id = ?", id).Updates(map[string]interface{}{
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
