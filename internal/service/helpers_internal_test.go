package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
