package api

import (
	"fmt"
	"net/url"
)

// Route layout names accepted in configuration.
const (
	RoutesModern = "modern"
	RoutesLegacy = "legacy"
)

// Routes describes the endpoint paths of a deployment. Deployments differ
// only in where the auth endpoints live.
type Routes struct {
	Register string
	Login    string
	Logout   string
	Rooms    string
	Bookings string
}

// RoutesFor returns the layout for name. Unknown names fall back to modern.
func RoutesFor(name string) Routes {
	r := Routes{
		Register: "/api/users/register",
		Login:    "/api/users/login",
		Logout:   "/logout",
		Rooms:    "/api/rooms",
		Bookings: "/api/bookings",
	}
	if name == RoutesLegacy {
		r.Register = "/register"
		r.Login = "/login"
	}
	return r
}

// Room returns the path of one room.
func (r Routes) Room(id string) string {
	return fmt.Sprintf("%s/%s", r.Rooms, url.PathEscape(id))
}

// UserBookings returns the path listing bookings of userID.
func (r Routes) UserBookings(userID string) string {
	return fmt.Sprintf("%s/user/%s", r.Bookings, url.PathEscape(userID))
}
