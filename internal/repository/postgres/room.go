package postgres

import (
	"context"
	"database/sql"
	"errors"

	"staybook-backend/internal/domain"
	"staybook-backend/internal/repository"
)

type roomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) repository.RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	query := `SELECT id, hotel_id, name, price_per_night, discount_pct, max_adults, max_children, total_rooms FROM rooms WHERE id = $1`
	room := &domain.Room{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID, &room.HotelID, &room.Name, &room.PricePerNight, &room.DiscountPct, &room.MaxAdults, &room.MaxChildren, &room.TotalRooms,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("room %s", id)
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}
