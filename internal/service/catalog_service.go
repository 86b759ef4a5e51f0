package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-stock-ledger/internal/lockset"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/session"
	"go-stock-ledger/pkg/validator"
)

// ItemInput is the editable part of an item. OpeningStock is only honoured on create.
type ItemInput struct {
	Name             string          `json:"name" validate:"required,max=255"`
	Type             model.ItemType  `json:"type" validate:"omitempty,oneof=Raw Final"`
	SpecificationID  *uuid.UUID      `json:"specification_id"`
	SupplierID       *uuid.UUID      `json:"supplier_id"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold" validate:"gte=0"`
	Rate             decimal.Decimal `json:"rate" validate:"gte=0"`
	LeadTimeDays     int             `json:"lead_time_days" validate:"gte=0"`
	Rack             string          `json:"rack" validate:"max=50"`
	Bin              string          `json:"bin" validate:"max=50"`
	OpeningStock     decimal.Decimal `json:"opening_stock" validate:"gte=0"`
}

type SupplierInput struct {
	Name         string `json:"name" validate:"required,max=255"`
	GSTNo        string `json:"gst_no" validate:"max=30"`
	Contact      string `json:"contact" validate:"max=255"`
	LeadTimeDays int    `json:"lead_time_days" validate:"gte=0"`
}

type SpecificationInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

type CatalogService interface {
	CreateItem(token string, in ItemInput) (*model.Item, error)
	UpdateItem(token string, id uuid.UUID, in ItemInput) (*model.Item, error)
	DeleteItem(token string, id uuid.UUID) error
	GetItem(token string, id uuid.UUID) (*model.Item, error)
	ListItems(token string, includeInactive bool) ([]model.Item, error)

	CreateSupplier(token string, in SupplierInput) (*model.Supplier, error)
	UpdateSupplier(token string, id uuid.UUID, in SupplierInput) (*model.Supplier, error)
	DeleteSupplier(token string, id uuid.UUID) error
	GetSupplier(token string, id uuid.UUID) (*model.Supplier, error)
	ListSuppliers(token string) ([]model.Supplier, error)

	CreateSpecification(token string, in SpecificationInput) (*model.Specification, error)
	UpdateSpecification(token string, id uuid.UUID, in SpecificationInput) (*model.Specification, error)
	DeleteSpecification(token string, id uuid.UUID) error
	GetSpecification(token string, id uuid.UUID) (*model.Specification, error)
	ListSpecifications(token string) ([]model.Specification, error)
}

type catalogService struct {
	db           *gorm.DB
	gate         Gate
	itemRepo     repository.ItemRepository
	supplierRepo repository.SupplierRepository
	specRepo     repository.SpecificationRepository
	txRepo       repository.TransactionRepository
	locks        *lockset.Set
	notifier     Notifier
	audit        auditor
}

func NewCatalogService(
	db *gorm.DB,
	gate Gate,
	itemRepo repository.ItemRepository,
	supplierRepo repository.SupplierRepository,
	specRepo repository.SpecificationRepository,
	txRepo repository.TransactionRepository,
	auditRepo repository.AuditRepository,
	locks *lockset.Set,
	notifier Notifier,
) CatalogService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &catalogService{
		db:           db,
		gate:         gate,
		itemRepo:     itemRepo,
		supplierRepo: supplierRepo,
		specRepo:     specRepo,
		txRepo:       txRepo,
		locks:        locks,
		notifier:     notifier,
		audit:        auditor{repo: auditRepo},
	}
}

// validateInput runs the struct tags and reports the first failure.
func validateInput(in interface{}) error {
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		e := errs[0]
		field := e.FailedField
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return &ValidationError{Kind: InvalidInput, Field: field, Message: e.Error()}
	}
	return nil
}

// checkItemScales rejects values with more decimal places than their columns
// store, so nothing is rounded on write.
func checkItemScales(in ItemInput) error {
	if !model.FitsScale(in.OpeningStock, model.QuantityScale) {
		return &ValidationError{Kind: InvalidQuantity, Field: "OpeningStock",
			Message: fmt.Sprintf("opening stock allows at most %d decimal places", model.QuantityScale)}
	}
	if !model.FitsScale(in.ReorderThreshold, model.QuantityScale) {
		return invalidInput("ReorderThreshold", "reorder threshold allows at most %d decimal places", model.QuantityScale)
	}
	if !model.FitsScale(in.Rate, model.MoneyScale) {
		return invalidInput("Rate", "rate allows at most %d decimal places", model.MoneyScale)
	}
	return nil
}

// ========== ITEMS ==========

func (s *catalogService) CreateItem(token string, in ItemInput) (*model.Item, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	item, err := s.createItem(sess, in)
	var id *uuid.UUID
	if item != nil {
		id = idPtr(item.ID)
	}
	s.audit.record(sess.Username, model.ActionCreate, "items", id, err, strings.TrimSpace(in.Name))
	return item, err
}

func (s *catalogService) createItem(sess *session.Session, in ItemInput) (*model.Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := checkItemScales(in); err != nil {
		return nil, err
	}
	if err := s.checkReferences(in); err != nil {
		return nil, err
	}

	actor := actorID(sess)
	item := &model.Item{
		Name:             in.Name,
		Type:             itemType(in.Type),
		SpecificationID:  in.SpecificationID,
		SupplierID:       in.SupplierID,
		ReorderThreshold: in.ReorderThreshold,
		Rate:             in.Rate,
		LeadTimeDays:     in.LeadTimeDays,
		Rack:             strings.TrimSpace(in.Rack),
		Bin:              strings.TrimSpace(in.Bin),
	}
	item.CreatedBy = actor
	item.UpdatedBy = actor

	var opening *model.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.itemRepo.Create(tx, item); err != nil {
			return err
		}
		if !in.OpeningStock.IsPositive() {
			return nil
		}

		// Opening stock is booked as an ordinary inward so the ledger sum
		// matches on-hand from the first moment.
		if err := s.itemRepo.ApplyStock(tx, item, in.OpeningStock, actor); err != nil {
			return err
		}
		ref := model.OpeningInvoiceRef
		opening = &model.Transaction{
			Kind:             model.TxInward,
			PostedByUserID:   sess.UserID,
			PostedByUsername: sess.Username,
			InvoiceRef:       &ref,
			Lines: []model.LineEntry{{
				Position: 1,
				ItemID:   item.ID,
				ItemName: item.Name,
				Quantity: in.OpeningStock,
			}},
		}
		return s.txRepo.Create(tx, opening)
	})
	if err != nil {
		return nil, err
	}

	if opening != nil {
		s.notifier.Publish("transaction_posted", opening)
	}
	slog.Info("item created", "id", item.ID, "name", item.Name, "opening_stock", in.OpeningStock)
	return s.itemRepo.FindByID(item.ID)
}

func (s *catalogService) UpdateItem(token string, id uuid.UUID, in ItemInput) (*model.Item, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	item, err := s.updateItem(sess, id, in)
	s.audit.record(sess.Username, model.ActionUpdate, "items", idPtr(id), err, strings.TrimSpace(in.Name))
	return item, err
}

func (s *catalogService) updateItem(sess *session.Session, id uuid.UUID, in ItemInput) (*model.Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := checkItemScales(in); err != nil {
		return nil, err
	}

	item, err := s.itemRepo.FindByID(id)
	if err != nil {
		return nil, notFound("item", err)
	}
	if err := s.checkReferences(in); err != nil {
		return nil, err
	}

	item.Name = in.Name
	item.Type = itemType(in.Type)
	item.SpecificationID = in.SpecificationID
	item.SupplierID = in.SupplierID
	item.ReorderThreshold = in.ReorderThreshold
	item.Rate = in.Rate
	item.LeadTimeDays = in.LeadTimeDays
	item.Rack = strings.TrimSpace(in.Rack)
	item.Bin = strings.TrimSpace(in.Bin)
	item.UpdatedBy = actorID(sess)
	item.Supplier = nil
	item.Specification = nil

	if err := s.itemRepo.UpdateDetails(item); err != nil {
		return nil, err
	}
	return s.itemRepo.FindByID(id)
}

// DeleteItem deactivates the item. It waits for in-flight postings on the item
// so a posting never lands on an item after its deletion.
func (s *catalogService) DeleteItem(token string, id uuid.UUID) error {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(id)
	err = s.itemRepo.SoftDelete(id, actorID(sess))
	unlock()

	err = notFound("item", err)
	s.audit.record(sess.Username, model.ActionDelete, "items", idPtr(id), err, "")
	if err == nil {
		s.notifier.Publish("item_deleted", map[string]interface{}{"item_id": id})
	}
	return err
}

// GetItem also resolves deleted items so history can show them.
func (s *catalogService) GetItem(token string, id uuid.UUID) (*model.Item, error) {
	if _, err := s.gate.Authorize(token, model.CapViewCatalog); err != nil {
		return nil, err
	}
	item, err := s.itemRepo.FindByIDAny(id)
	if err != nil {
		return nil, notFound("item", err)
	}
	return item, nil
}

func (s *catalogService) ListItems(token string, includeInactive bool) ([]model.Item, error) {
	if _, err := s.gate.Authorize(token, model.CapViewCatalog); err != nil {
		return nil, err
	}
	return s.itemRepo.FindAll(includeInactive)
}

func (s *catalogService) checkReferences(in ItemInput) error {
	if in.SupplierID != nil {
		if _, err := s.supplierRepo.FindByID(*in.SupplierID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidInput("supplier_id", "supplier %s does not exist", *in.SupplierID)
			}
			return err
		}
	}
	if in.SpecificationID != nil {
		if _, err := s.specRepo.FindByID(*in.SpecificationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidInput("specification_id", "specification %s does not exist", *in.SpecificationID)
			}
			return err
		}
	}
	return nil
}

func itemType(t model.ItemType) model.ItemType {
	if t == "" {
		return model.ItemRaw
	}
	return t
}

// ========== SUPPLIERS ==========

func (s *catalogService) CreateSupplier(token string, in SupplierInput) (*model.Supplier, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	supplier, err := s.saveSupplier(sess, nil, in)
	var id *uuid.UUID
	if supplier != nil {
		id = idPtr(supplier.ID)
	}
	s.audit.record(sess.Username, model.ActionCreate, "suppliers", id, err, strings.TrimSpace(in.Name))
	return supplier, err
}

func (s *catalogService) UpdateSupplier(token string, id uuid.UUID, in SupplierInput) (*model.Supplier, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	supplier, err := s.saveSupplier(sess, &id, in)
	s.audit.record(sess.Username, model.ActionUpdate, "suppliers", idPtr(id), err, strings.TrimSpace(in.Name))
	return supplier, err
}

// saveSupplier creates when id is nil and updates otherwise.
func (s *catalogService) saveSupplier(sess *session.Session, id *uuid.UUID, in SupplierInput) (*model.Supplier, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.GSTNo = strings.ToUpper(strings.TrimSpace(in.GSTNo))
	if err := validateInput(in); err != nil {
		return nil, err
	}

	supplier := &model.Supplier{}
	exclude := uuid.Nil
	if id != nil {
		existing, err := s.supplierRepo.FindByID(*id)
		if err != nil {
			return nil, notFound("supplier", err)
		}
		supplier = existing
		exclude = existing.ID
	}

	supplier.GSTNo = nil
	if in.GSTNo != "" {
		taken, err := s.supplierRepo.GSTNoTaken(in.GSTNo, exclude)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("supplier with GST number %s %w", in.GSTNo, ErrDuplicate)
		}
		gst := in.GSTNo
		supplier.GSTNo = &gst
	}
	supplier.Name = in.Name
	supplier.Contact = strings.TrimSpace(in.Contact)
	supplier.LeadTimeDays = in.LeadTimeDays
	supplier.UpdatedBy = actorID(sess)

	if id == nil {
		supplier.CreatedBy = actorID(sess)
		if err := s.supplierRepo.Create(supplier); err != nil {
			return nil, err
		}
		return supplier, nil
	}
	if err := s.supplierRepo.Update(supplier); err != nil {
		return nil, err
	}
	return s.supplierRepo.FindByID(supplier.ID)
}

// DeleteSupplier refuses while an active item still names the supplier.
func (s *catalogService) DeleteSupplier(token string, id uuid.UUID) error {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return err
	}

	err = s.deleteSupplier(sess, id)
	s.audit.record(sess.Username, model.ActionDelete, "suppliers", idPtr(id), err, "")
	return err
}

func (s *catalogService) deleteSupplier(sess *session.Session, id uuid.UUID) error {
	n, err := s.itemRepo.CountActiveBySupplier(id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("supplier %w (%d item(s))", ErrInUse, n)
	}
	return notFound("supplier", s.supplierRepo.Delete(id, actorID(sess)))
}

func (s *catalogService) GetSupplier(token string, id uuid.UUID) (*model.Supplier, error) {
	if _, err := s.gate.Authorize(token, model.CapViewCatalog); err != nil {
		return nil, err
	}
	supplier, err := s.supplierRepo.FindByID(id)
	if err != nil {
		return nil, notFound("supplier", err)
	}
	return supplier, nil
}

func (s *catalogService) ListSuppliers(token string) ([]model.Supplier, error) {
	if _, err := s.gate.Authorize(token, model.CapViewCatalog); err != nil {
		return nil, err
	}
	return s.supplierRepo.FindAll()
}

// ========== SPECIFICATIONS ==========

func (s *catalogService) CreateSpecification(token string, in SpecificationInput) (*model.Specification, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	spec, err := s.saveSpecification(sess, nil, in)
	var id *uuid.UUID
	if spec != nil {
		id = idPtr(spec.ID)
	}
	s.audit.record(sess.Username, model.ActionCreate, "specifications", id, err, strings.TrimSpace(in.Name))
	return spec, err
}

func (s *catalogService) UpdateSpecification(token string, id uuid.UUID, in SpecificationInput) (*model.Specification, error) {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return nil, err
	}

	spec, err := s.saveSpecification(sess, &id, in)
	s.audit.record(sess.Username, model.ActionUpdate, "specifications", idPtr(id), err, strings.TrimSpace(in.Name))
	return spec, err
}

func (s *catalogService) saveSpecification(sess *session.Session, id *uuid.UUID, in SpecificationInput) (*model.Specification, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	spec := &model.Specification{}
	exclude := uuid.Nil
	if id != nil {
		existing, err := s.specRepo.FindByID(*id)
		if err != nil {
			return nil, notFound("specification", err)
		}
		spec = existing
		exclude = existing.ID
	}

	taken, err := s.specRepo.NameTaken(in.Name, exclude)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("specification %q %w", in.Name, ErrDuplicate)
	}

	spec.Name = in.Name
	spec.Description = strings.TrimSpace(in.Description)
	spec.UpdatedBy = actorID(sess)

	if id == nil {
		spec.CreatedBy = actorID(sess)
		if err := s.specRepo.Create(spec); err != nil {
			return nil, err
		}
		return spec, nil
	}
	if err := s.specRepo.Update(spec); err != nil {
		return nil, err
	}
	return s.specRepo.FindByID(spec.ID)
}

func (s *catalogService) DeleteSpecification(token string, id uuid.UUID) error {
	sess, err := s.gate.Authorize(token, model.CapManageCatalog)
	if err != nil {
		return err
	}

	err = s.deleteSpecification(sess, id)
	s.audit.record(sess.Username, model.ActionDelete, "specifications", idPtr(id), err, "")
	return err
}

func (s *catalogService) deleteSpecification(sess *session.Session, id uuid.UUID) error {
	n, err := s.itemRepo.CountActiveBySpecification(id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("specification %w (%d item(s))", ErrInUse, n)
	}
	return notFound("specification", s.specRepo.Delete(id, actorID(sess)))
}

func (s *catalogService) GetSpecification(token string, id uuid.UUID) (*model.Specification, error) {
	if _, err := s.gate.Authorize(token, model.CapViewSpecs); err != nil {
		return nil, err
	}
	spec, err := s.specRepo.FindByID(id)
	if err != nil {
		return nil, notFound("specification", err)
	}
	return spec, nil
}

func (s *catalogService) ListSpecifications(token string) ([]model.Specification, error) {
	if _, err := s.gate.Authorize(token, model.CapViewSpecs); err != nil {
		return nil, err
	}
	return s.specRepo.FindAll()
}
