package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TicketPriority orders human review work.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
)

// TicketState is a review ticket's resolution state.
type TicketState string

const (
	TicketOpen     TicketState = "open"
	TicketResolved TicketState = "resolved"
)

// Ticket is a human-in-the-loop work item attached to a fusion result.
type Ticket struct {
	ID             int64
	FusionResultID string
	JobID          int64
	Priority       TicketPriority
	SLADeadline    time.Time
	State          TicketState
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Overdue reports whether an open ticket has passed its SLA deadline.
func (t *Ticket) Overdue(now time.Time) bool {
	return t.State == TicketOpen && now.After(t.SLADeadline)
}

// CreateTicket inserts a review ticket for a fusion result.
func (s *Store) CreateTicket(ctx context.Context, resultID string, jobID int64, priority TicketPriority, deadline time.Time) (*Ticket, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO review_tickets (fusion_result_id, job_id, priority, sla_deadline, state, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		resultID,
		jobID,
		priority,
		formatTime(deadline),
		TicketOpen,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert review ticket: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ticket insert id: %w", err)
	}
	return s.GetTicket(ctx, id)
}

// ResolveTicket closes every open ticket linked to a fusion result.
// Resolution happens through an admin override or an explicit manual
// action; there is no automatic expiry.
func (s *Store) ResolveTicket(ctx context.Context, resultID string) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE review_tickets SET state = ?, resolved_at = ?
         WHERE fusion_result_id = ? AND state = ?`,
		TicketResolved, now, resultID, TicketOpen,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve review ticket: %w", err)
	}
	return res.RowsAffected()
}

// GetTicket fetches a ticket by identifier.
func (s *Store) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+ticketColumns+` FROM review_tickets WHERE id = ?`,
		id,
	)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review ticket: %w", err)
	}
	return ticket, nil
}

// TicketForJob returns the ticket attached to a job, if any.
func (s *Store) TicketForJob(ctx context.Context, jobID int64) (*Ticket, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+ticketColumns+` FROM review_tickets WHERE job_id = ? ORDER BY id DESC LIMIT 1`,
		jobID,
	)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket for job: %w", err)
	}
	return ticket, nil
}

// OpenTickets lists unresolved tickets ordered by SLA urgency.
func (s *Store) OpenTickets(ctx context.Context) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+ticketColumns+` FROM review_tickets WHERE state = ? ORDER BY sla_deadline`,
		TicketOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

const ticketColumns = "id, fusion_result_id, job_id, priority, sla_deadline, state, created_at, resolved_at"

func scanTicket(scanner interface{ Scan(dest ...any) error }) (*Ticket, error) {
	var (
		ticket      Ticket
		priority    string
		state       string
		deadlineRaw string
		createdRaw  string
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(
		&ticket.ID,
		&ticket.FusionResultID,
		&ticket.JobID,
		&priority,
		&deadlineRaw,
		&state,
		&createdRaw,
		&resolvedRaw,
	); err != nil {
		return nil, err
	}
	ticket.Priority = TicketPriority(priority)
	ticket.State = TicketState(state)
	if t, err := parseTimeString(deadlineRaw); err == nil {
		ticket.SLADeadline = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		ticket.CreatedAt = t
	}
	if resolvedRaw.Valid {
		if t, err := parseTimeString(resolvedRaw.String); err == nil {
			ticket.ResolvedAt = &t
		}
	}
	return &ticket, nil
}
