package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-messaging/internal/errors"
	"github.com/unclebandit/campaign-messaging/internal/model"
)

// MessageRepository is the PostgreSQL message store.
type MessageRepository struct {
	DB *sql.DB
}

var messageColumns = []string{
	"message_id", "campaign_id", "client_phone", "status",
	"provider_sid", "error_code", "created_at", "updated_at",
}

// InsertMany streams the records through COPY inside one transaction.
func (r *MessageRepository) InsertMany(ctx context.Context, msgs []*model.Message) (err error) {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return appErrors.Store("insert messages", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("messages", messageColumns...))
	if err != nil {
		return appErrors.Store("insert messages", err)
	}

	for _, m := range msgs {
		_, err = stmt.ExecContext(ctx,
			m.MessageID,
			m.CampaignID,
			m.ClientPhone,
			string(m.Status),
			nullString(m.ProviderSID),
			m.ErrorCode,
			m.CreatedAt,
			m.UpdatedAt,
		)
		if err != nil {
			stmt.Close()
			return appErrors.Store("insert messages", err)
		}
	}

	// flush the COPY buffer
	if _, err = stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return appErrors.Store("insert messages", err)
	}
	if err = stmt.Close(); err != nil {
		return appErrors.Store("insert messages", err)
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Store("insert messages", err)
	}
	return nil
}

func (r *MessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	query := `
        SELECT message_id, campaign_id, client_phone, status, provider_sid, error_code, created_at, updated_at
        FROM messages
        WHERE message_id=$1
    `
	var (
		msg    model.Message
		status string
		sid    sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, messageID).Scan(
		&msg.MessageID, &msg.CampaignID, &msg.ClientPhone, &status,
		&sid, &msg.ErrorCode, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Store("get message", err)
	}
	msg.Status = model.MessageStatus(status)
	msg.ProviderSID = sid.String
	return &msg, nil
}

func (r *MessageRepository) UpdateByMessageID(ctx context.Context, messageID string, u model.MessageUpdate) error {
	query, args := buildMessageUpdate("message_id", messageID, u)
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return appErrors.Store("update message", err)
	}
	return nil
}

func (r *MessageRepository) UpdateByProviderSID(ctx context.Context, sid string, u model.MessageUpdate) (bool, error) {
	if sid == "" {
		return false, nil
	}
	query, args := buildMessageUpdate("provider_sid", sid, u)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, appErrors.Store("update message by provider sid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErrors.Store("update message by provider sid", err)
	}
	return n > 0, nil
}

func (r *MessageRepository) StatusCounts(ctx context.Context, campaignID string) ([]model.StatusCount, error) {
	query := `SELECT status, COUNT(*) FROM messages WHERE campaign_id=$1 GROUP BY status ORDER BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, appErrors.Store("campaign stats", err)
	}
	defer rows.Close()

	stats := []model.StatusCount{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, appErrors.Store("campaign stats", err)
		}
		stats = append(stats, model.StatusCount{Status: model.MessageStatus(status), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Store("campaign stats", err)
	}
	return stats, nil
}

// buildMessageUpdate renders the SET list for u in a fixed column order:
// status, updated_at, provider_sid, error_code.
func buildMessageUpdate(keyColumn, key string, u model.MessageUpdate) (string, []interface{}) {
	sets := []string{"status=$1", "updated_at=$2"}
	args := []interface{}{string(u.Status), time.Now().UTC()}

	if u.ProviderSID != "" {
		args = append(args, u.ProviderSID)
		sets = append(sets, fmt.Sprintf("provider_sid=$%d", len(args)))
	}
	if u.SetErrorCode {
		args = append(args, u.ErrorCode)
		sets = append(sets, fmt.Sprintf("error_code=$%d", len(args)))
	}

	args = append(args, key)
	query := fmt.Sprintf("UPDATE messages SET %s WHERE %s=$%d", strings.Join(sets, ", "), keyColumn, len(args))

	if len(u.UnlessStatusIn) > 0 {
		blocked := make([]string, len(u.UnlessStatusIn))
		for i, s := range u.UnlessStatusIn {
			blocked[i] = string(s)
		}
		args = append(args, pq.Array(blocked))
		query += fmt.Sprintf(" AND status <> ALL($%d)", len(args))
	}
	return query, args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
