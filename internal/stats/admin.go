package stats

import (
	"context"
	"time"

	"github.com/bstardust/photo-gps-resolver/internal/storage"
)

const adminQuery = `SELECT
	count(*),
	count(*) FILTER (WHERE chat_id <> $1),
	count(*) FILTER (WHERE captured_at >= $2),
	count(*) FILTER (WHERE captured_at >= $2 AND chat_id <> $1),
	count(DISTINCT chat_id),
	count(DISTINCT chat_id) FILTER (WHERE chat_id <> $1),
	count(DISTINCT chat_id) FILTER (WHERE captured_at >= $2),
	count(DISTINCT chat_id) FILTER (WHERE captured_at >= $2 AND chat_id <> $1),
	count(DISTINCT camera_name),
	count(DISTINCT camera_name) FILTER (WHERE captured_at >= $2)
FROM query_records`

// AdminStats is the operator overview. The *ExceptAdmin fields leave out the
// configured admin chat.
type AdminStats struct {
	Photos                 int64 `json:"photos"`
	PhotosExceptAdmin      int64 `json:"photos_except_admin"`
	PhotosToday            int64 `json:"photos_today"`
	PhotosTodayExceptAdmin int64 `json:"photos_today_except_admin"`
	Users                  int64 `json:"users"`
	UsersExceptAdmin       int64 `json:"users_except_admin"`
	UsersToday             int64 `json:"users_today"`
	UsersTodayExceptAdmin  int64 `json:"users_today_except_admin"`
	Cameras                int64 `json:"cameras"`
	CamerasToday           int64 `json:"cameras_today"`

	Since time.Time `json:"since"`
}

// AdminStats counts photos, users and cameras overall and since local
// midnight. It is not cached.
func (e *Engine) AdminStats(ctx context.Context) (*AdminStats, error) {
	now := e.clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	s := &AdminStats{Since: midnight}
	err := e.db.Execute(ctx, adminQuery, []any{e.adminChatID, midnight}, func(rows storage.Rows) error {
		for rows.Next() {
			if err := rows.Scan(
				&s.Photos, &s.PhotosExceptAdmin,
				&s.PhotosToday, &s.PhotosTodayExceptAdmin,
				&s.Users, &s.UsersExceptAdmin,
				&s.UsersToday, &s.UsersTodayExceptAdmin,
				&s.Cameras, &s.CamerasToday,
			); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}
