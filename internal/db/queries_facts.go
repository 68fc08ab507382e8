package db

import "fmt"

// Fact is one learned user fact, keyed per user by the fixed context keys the
// extraction step produces.
type Fact struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// SetFact stores or updates a learned fact for a user.
func (d *DB) SetFact(userID, key, value string) error {
	_, err := d.conn.Exec(
		"INSERT INTO facts (user_id, key, value) VALUES (?, ?, ?) ON CONFLICT(user_id, key) DO UPDATE SET value = ?, updated_at = datetime('now')",
		userID, key, value, value,
	)
	if err != nil {
		return fmt.Errorf("setting fact: %w", err)
	}
	return nil
}

// GetFacts returns a user's facts as the key→value map the agent consumes.
func (d *DB) GetFacts(userID string) (map[string]string, error) {
	rows, err := d.conn.Query("SELECT key, value FROM facts WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("getting facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts[key] = value
	}
	return facts, rows.Err()
}

// PruneFacts deletes facts not updated in the last ttlDays days and returns
// how many were removed.
func (d *DB) PruneFacts(ttlDays int) (int64, error) {
	res, err := d.conn.Exec(
		"DELETE FROM facts WHERE updated_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", ttlDays),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning facts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
