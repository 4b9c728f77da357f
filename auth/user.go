package auth

import "time"

// User is the profile object returned by the backend. It is immutable
// from the client's perspective and replaced wholesale on login or
// profile fetch.
type User struct {
	ID            int       `json:"id"`             // Unique identifier for the user
	Email         string    `json:"email"`          // User's email address
	FirstName     string    `json:"first_name"`     // First name of the user
	LastName      string    `json:"last_name"`      // Last name of the user
	EmailVerified bool      `json:"email_verified"` // Has the user confirmed their email address
	IsApproved    bool      `json:"is_approved"`    // Has the user been let off the waitlist
	DateJoined    time.Time `json:"date_joined"`    // Date and time when the user registered
}

// RegisterRequest is the payload for the registration endpoint.
// Registration requires an invitation token and is followed by
// out-of-band email verification.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Password2       string `json:"password2"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	InvitationToken string `json:"invitation_token"`
}

// WaitlistRequest is the payload for the waitlist signup endpoint.
type WaitlistRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// loginResponse carries both bearer credentials and the user profile.
type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}
