package service

import (
	"time"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/repository"
)

type DashboardService interface {
	GetStockMovement(token string, days int) ([]repository.StockMovementData, error)
	GetDashboardStats(token string) (*repository.DashboardStats, error)
}

type dashboardService struct {
	gate   Gate
	txRepo repository.TransactionRepository
}

func NewDashboardService(gate Gate, txRepo repository.TransactionRepository) DashboardService {
	return &dashboardService{gate: gate, txRepo: txRepo}
}

func (s *dashboardService) GetStockMovement(token string, days int) ([]repository.StockMovementData, error) {
	if _, err := s.gate.Authorize(token, model.CapViewTransactions); err != nil {
		return nil, err
	}
	if days <= 0 || days > 366 {
		days = 7
	}

	endDate := time.Now().UTC()
	startDate := endDate.AddDate(0, 0, -days)

	return s.txRepo.GetStockMovement(startDate, endDate)
}

func (s *dashboardService) GetDashboardStats(token string) (*repository.DashboardStats, error) {
	if _, err := s.gate.Authorize(token, model.CapViewStock); err != nil {
		return nil, err
	}
	return s.txRepo.GetDashboardStats()
}
