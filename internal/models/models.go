package models

import "time"

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionDebit, DirectionCredit:
		return true
	}
	return false
}

// Signed applies the ledger sign convention: credits positive, debits negative.
func (d Direction) Signed(amount int64) int64 {
	if d == DirectionDebit {
		return -amount
	}
	return amount
}

type Reason string

const (
	ReasonPostTest         Reason = "post_test"
	ReasonFeedbackApproved Reason = "feedback_approved"
	ReasonPurchase         Reason = "purchase"
	ReasonRefund           Reason = "refund"
	ReasonAdminAdjust      Reason = "admin_adjust"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonPostTest, ReasonFeedbackApproved, ReasonPurchase, ReasonRefund, ReasonAdminAdjust:
		return true
	}
	return false
}

type TestStatus string

const (
	TestActive TestStatus = "active"
	TestClosed TestStatus = "closed"
)

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
)

func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionApproved || s == SubmissionRejected
}

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Account struct {
	UserID           string    `db:"user_id" json:"user_id"`
	AvailableCredits int64     `db:"available_credits" json:"available_credits"`
	LockedCredits    int64     `db:"locked_credits" json:"locked_credits"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type TestRequest struct {
	ID              string     `db:"id" json:"id"`
	OwnerID         string     `db:"owner_id" json:"owner_id"`
	Title           string     `db:"title" json:"title"`
	Type            string     `db:"type" json:"type"`
	Goals           string     `db:"goals" json:"goals"`
	TimeRequired    int        `db:"time_required" json:"time_required"`
	Link            string     `db:"link" json:"link"`
	NDA             bool       `db:"nda" json:"nda"`
	RewardPerTester int64      `db:"reward_per_tester" json:"reward_per_tester"`
	MaxTesters      int        `db:"max_testers" json:"max_testers"`
	LockedRemaining int64      `db:"locked_remaining" json:"locked_remaining"`
	Status          TestStatus `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

type Submission struct {
	ID        string           `db:"id" json:"id"`
	TestID    string           `db:"test_id" json:"test_id"`
	TesterID  string           `db:"tester_id" json:"tester_id"`
	Content   string           `db:"content" json:"content"`
	Rating    *int             `db:"rating" json:"rating,omitempty"`
	Status    SubmissionStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// CreditTransaction is an append-only ledger row. The signed sum of a user's
// rows equals their available balance at all times; locked value is carried by
// the open test pools it was escrowed into.
type CreditTransaction struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Direction  Direction `db:"direction" json:"direction"`
	Reason     Reason    `db:"reason" json:"reason"`
	TestID     *string   `db:"test_id" json:"test_id,omitempty"`
	FeedbackID *string   `db:"feedback_id" json:"feedback_id,omitempty"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
	Metadata   string    `db:"metadata" json:"metadata"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type PaymentSession struct {
	ID        string      `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"user_id"`
	SessionID string      `db:"session_id" json:"session_id"`
	Credits   int64       `db:"credits" json:"credits"`
	Amount    int64       `db:"amount" json:"amount"`
	Currency  string      `db:"currency" json:"currency"`
	Status    OrderStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
