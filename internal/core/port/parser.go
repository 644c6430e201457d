package port

import "github.com/guillermoBallester/rowtrail/internal/core/domain"

// StatementParser classifies SQL text and extracts statement descriptors.
type StatementParser interface {
	IsAuditable(sql string) bool
	Parse(sql string) *domain.Statement
}
