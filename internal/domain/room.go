package domain

import "github.com/shopspring/decimal"

// Room is the read model of a bookable room type. Rooms are owned by the
// inventory service; this backend only reads them.
type Room struct {
	ID            string
	HotelID       string
	Name          string
	PricePerNight decimal.Decimal
	DiscountPct   decimal.Decimal
	MaxAdults     int
	MaxChildren   int
	TotalRooms    int
}

// Fits reports whether the guest counts stay within the room's capacity
func (r *Room) Fits(adults, children int) bool {
	return adults <= r.MaxAdults && children <= r.MaxChildren && adults+children <= r.MaxAdults+r.MaxChildren
}
