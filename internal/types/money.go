// README: Money value object; order totals are stored in minor units.
package types

type Money struct {
    Amount   int64  `json:"amount"`
    Currency string `json:"currency"`
}

// Major returns the amount in major currency units.
func (m Money) Major() float64 {
    return float64(m.Amount) / 100
}
