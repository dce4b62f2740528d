package agent

import "context"

func DoWork(ctx context.Context, name string) (string, error) {
	return "", nil
}

func SimpleFunc() {
}

func HelperFunc(a, b int) int {
	return a + b
}

func OldOnly(x string) string {
	return x
}

func Variadic(args ...string) int {
	return len(args)
}

type Config struct {
	Host    string
	Port    int
	Timeout int
	secret  string
}

type Handler interface {
	Handle(ctx context.Context, req string) (string, error)
	Close() error
}

type unexportedType struct{}

func (c *Config) Validate() error {
	return nil
}

func (c *Config) Apply(target string) (bool, error) {
	return false, nil
}

func (u *unexportedType) Hidden() {}

const MaxRetries int = 3

const UntypedConst = "hello"

const (
	LevelLow = iota
	LevelMid
	levelHidden
)
