package quote

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// DefaultNumberPrefix prefixes generated quote numbers.
const DefaultNumberPrefix = "QT"

var numberPattern = regexp.MustCompile(`^[A-Z0-9]+-\d{4}-\d{4}$`)

// NewNumber generates a quote number of the form PREFIX-YYYY-NNNN.
func NewNumber(prefix string, now time.Time) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return fmt.Sprintf("%s-%d-%d", prefix, now.Year(), rand.IntN(9000)+1000)
}

// WellFormedNumber reports whether number follows the generated pattern.
// Manually entered numbers are allowed; session state reports the result as
// a hint.
func WellFormedNumber(number string) bool {
	return numberPattern.MatchString(number)
}
