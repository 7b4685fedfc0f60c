package types

import "time"

// Subscription is the plan tag attached to an account.
type Subscription string

const (
	SubscriptionStarter  Subscription = "starter"
	SubscriptionPro      Subscription = "pro"
	SubscriptionBusiness Subscription = "business"

	// DefaultSubscription is assigned when registration omits a plan.
	DefaultSubscription = SubscriptionStarter
)

// Verification describes whether a user has proven ownership of their email.
// It is either Unverified (carrying the pending one-time token) or Verified.
type Verification interface {
	isVerification()
}

// Unverified holds the one-time token mailed to the user at registration.
type Unverified struct {
	Token string
}

// Verified marks an account whose email ownership has been confirmed.
type Verified struct{}

func (Unverified) isVerification() {}
func (Verified) isVerification()   {}

// User represents an account in the system.
type User struct {
	// ID is the opaque unique identifier of the user, assigned at creation.
	ID string `json:"id" db:"id"`

	// Email is the unique login key. It is stored as given.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Subscription is the user's plan.
	Subscription Subscription `json:"subscription" db:"subscription"`

	// AvatarURL points at the current avatar image. It starts as a gravatar
	// URL derived from the email and is replaced by uploaded avatars.
	AvatarURL string `json:"avatarURL" db:"avatar_url"`

	// Verification is persisted as the verified and verification_token columns.
	Verification Verification `json:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsVerified reports whether the user has confirmed their email.
func (u User) IsVerified() bool {
	_, ok := u.Verification.(Verified)
	return ok
}

// VerificationToken returns the pending verification token, if any.
func (u User) VerificationToken() (string, bool) {
	pending, ok := u.Verification.(Unverified)
	if !ok {
		return "", false
	}
	return pending.Token, true
}

// Profile is the public projection of a user returned by the API.
type Profile struct {
	Email        string       `json:"email"`
	Subscription Subscription `json:"subscription"`
}

// Profile returns the public projection of the user.
func (u User) Profile() Profile {
	return Profile{Email: u.Email, Subscription: u.Subscription}
}

// UserPatch lists the fields an update may change. Nil fields are left untouched.
type UserPatch struct {
	Subscription *Subscription
	AvatarURL    *string
	Verification Verification
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Subscription == nil && p.AvatarURL == nil && p.Verification == nil
}
