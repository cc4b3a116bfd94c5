package model

// RegisterRequest is the body of a register call.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RoomInput is the body of room create/update calls.
type RoomInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price" validate:"gte=0"`
	Images      []string `json:"images,omitempty" validate:"omitempty,dive,url"`
}

// BookingDraft is what a user submits to create a booking.
// Dates use the YYYY-MM-DD form.
type BookingDraft struct {
	RoomID       string `json:"roomId" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	CheckInDate  string `json:"checkInDate" validate:"required,datetime=2006-01-02"`
	CheckOutDate string `json:"checkOutDate" validate:"required,datetime=2006-01-02"`
}

// BookingRequest is the wire body of POST /api/bookings.
type BookingRequest struct {
	BookingDraft
	UserID string `json:"userId"`
}
