package order

import (
    "math"
    "sort"
    "time"
)

// priorityBaseline is a flat score reserved for distance weighting.
const priorityBaseline = 50

// PriorityScore ranks an order for a driver's queue: ten points per full hour
// of age, the baseline, and one point per ten major units of the total.
func PriorityScore(o *Order, now time.Time) int64 {
    age := now.Sub(o.CreatedAt)
    if age < 0 {
        age = 0
    }
    hours := int64(age / time.Hour)
    return hours*10 + priorityBaseline + int64(math.Round(o.Total.Major()/10))
}

// SortByPriority orders the slice by descending score. Equal scores keep
// their input order.
func SortByPriority(orders []*Order, now time.Time) {
    scores := make(map[*Order]int64, len(orders))
    for _, o := range orders {
        scores[o] = PriorityScore(o, now)
    }
    sort.SliceStable(orders, func(i, j int) bool {
        return scores[orders[i]] > scores[orders[j]]
    })
}
