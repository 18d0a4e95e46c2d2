// Package delivery projects a delivery date and courier contact number from
// an order's identity. The values are display-only.
package delivery

import (
	"strconv"
	"time"
)

const (
	seedMultiplier = 12345
	phoneBase      = 7000000000
	phoneRange     = 3000000000
	countryCode    = "+91"

	day = 24 * time.Hour

	// Legacy orders without persisted delivery data are only projected while
	// they are this young.
	fallbackWindow = 3 * day
)

// Estimate is a projected delivery.
type Estimate struct {
	Date  time.Time
	Phone string
}

// SeedFromTime derives the seed from an order's creation instant.
func SeedFromTime(t time.Time) int64 {
	return t.UnixMilli() * seedMultiplier
}

// SeedFromID derives the seed from an order's numeric id. Used for orders
// stored before delivery data was persisted.
func SeedFromID(id int) int64 {
	return int64(id) * seedMultiplier
}

// Project lands delivery one or two days after createdAt and picks a
// synthetic contact number, both fixed by seed.
func Project(seed int64, createdAt time.Time) Estimate {
	if seed < 0 {
		seed = -seed
	}
	days := seed%2 + 1
	return Estimate{
		Date:  createdAt.Add(time.Duration(days) * day),
		Phone: countryCode + " " + strconv.FormatInt(phoneBase+seed%phoneRange, 10),
	}
}

// Info is what the customer sees about delivery.
type Info struct {
	IsDelivered   bool       `json:"is_delivered"`
	DeliveryDate  *time.Time `json:"delivery_date,omitempty"`
	DeliveryPhone *string    `json:"delivery_phone,omitempty"`
}

// Source is the order data Display needs.
type Source struct {
	OrderID       int
	Status        string
	CreatedAt     time.Time
	DeliveryDate  *time.Time
	DeliveryPhone *string
}

// Display applies the customer-facing rule: nothing is shown before the
// delivery date, and the contact number only on the delivery day itself.
func Display(src Source, now time.Time) Info {
	var est Estimate
	switch {
	case src.DeliveryDate != nil && src.DeliveryPhone != nil:
		est = Estimate{Date: *src.DeliveryDate, Phone: *src.DeliveryPhone}
	case src.Status == "confirmed" && now.Sub(src.CreatedAt) < fallbackWindow:
		est = Project(SeedFromID(src.OrderID), src.CreatedAt)
	default:
		return Info{}
	}

	if est.Date.After(now) {
		return Info{}
	}

	date := est.Date
	info := Info{IsDelivered: true, DeliveryDate: &date}
	if int(now.Sub(est.Date)/day) == 0 {
		phone := est.Phone
		info.DeliveryPhone = &phone
	}
	return info
}
