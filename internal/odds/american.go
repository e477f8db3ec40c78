package odds

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidOdds: odd americana dentro de (-100,100)
var ErrInvalidOdds = errors.New("american odds must be >= 100 or <= -100")

// ValidateAmerican rejeita odds no intervalo (-100,100), inclusive o zero
func ValidateAmerican(american int) error {
	if american >= 100 || american <= -100 {
		return nil
	}
	return fmt.Errorf("%w: got %d", ErrInvalidOdds, american)
}

// ToDecimalMultiplier converte odd americana em multiplicador decimal (retorno total por unidade apostada)
func ToDecimalMultiplier(american int) (float64, error) {
	if err := ValidateAmerican(american); err != nil {
		return 0, err
	}
	if american >= 100 {
		return 1 + float64(american)/100, nil
	}
	return 1 + 100/math.Abs(float64(american)), nil
}

// FromDecimal deriva a odd americana de exibição a partir de um multiplicador > 1
func FromDecimal(multiplier float64) (int, error) {
	if math.IsNaN(multiplier) || multiplier <= 1 {
		return 0, fmt.Errorf("%w: multiplier %.6f", ErrInvalidOdds, multiplier)
	}
	if multiplier >= 2.0 {
		return int(math.Round((multiplier - 1) * 100)), nil
	}
	return int(math.Round(-100 / (multiplier - 1))), nil
}

// Combined é o resultado da combinação de pernas
type Combined struct {
	Multiplier float64 // precisão total
	American   int     // arredondada, só para exibição
}

// CombineParlay multiplica os multiplicadores de cada perna
func CombineParlay(legs []int) (Combined, error) {
	if len(legs) == 0 {
		return Combined{}, errors.New("parlay needs at least one leg")
	}
	product := 1.0
	for i, o := range legs {
		m, err := ToDecimalMultiplier(o)
		if err != nil {
			return Combined{}, fmt.Errorf("leg %d: %w", i, err)
		}
		product *= m
	}
	american, err := FromDecimal(product)
	if err != nil {
		return Combined{}, err
	}
	return Combined{Multiplier: product, American: american}, nil
}

// Payout é o retorno de uma aposta ganha
type Payout struct {
	Stake  decimal.Decimal
	Total  decimal.Decimal
	Profit decimal.Decimal
}

// Rounded arredonda para a fronteira de exibição/ledger (4 casas)
func (p Payout) Rounded() Payout {
	return Payout{Stake: p.Stake, Total: p.Total.Round(4), Profit: p.Profit.Round(4)}
}

// PayoutFor calcula stake * multiplicador da odd americana
func PayoutFor(units decimal.Decimal, american int) (Payout, error) {
	m, err := ToDecimalMultiplier(american)
	if err != nil {
		return Payout{}, err
	}
	return PayoutForMultiplier(units, m), nil
}

// PayoutForMultiplier usa um multiplicador já combinado (sem arredondar)
func PayoutForMultiplier(units decimal.Decimal, multiplier float64) Payout {
	total := units.Mul(decimal.NewFromFloat(multiplier))
	return Payout{Stake: units, Total: total, Profit: total.Sub(units)}
}
