package agent

import "context"

// DoWork gained a required opts parameter.
func DoWork(ctx context.Context, name string, opts map[string]string) (string, error) {
	return "", nil
}

func SimpleFunc() {
}

// HelperFunc renamed to HelperFunction.
func HelperFunction(a, b int) int {
	return a + b
}

func Variadic(args ...string) int {
	return len(args)
}

// Config renamed to Settings.
type Settings struct {
	Host    string
	Port    int
	Timeout int
}

type Handler interface {
	Handle(ctx context.Context, req string, opts ...string) (string, error)
}

func (s *Settings) Validate() error {
	return nil
}

const MaxRetries int = 5

const UntypedConst = "hello"

const (
	LevelLow = iota
	LevelMid
)

func NewFeature() {}
