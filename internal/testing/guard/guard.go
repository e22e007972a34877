package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TELLQUOTE_TEST_MODE") == "" {
			_ = os.Setenv("TELLQUOTE_TEST_MODE", "1")
		}
	})
}
