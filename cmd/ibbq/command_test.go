package main

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const testAddress = "00:00:00:00:00:01"

// syncBuffer is written by loggers and the progress printer from several
// goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs the root command against a fake central.
type CommandTestSuite struct {
	suite.Suite

	central         *testutils.FakeCentral
	originalCentral func(*logrus.Logger) (device.Central, func(), error)
	stderr          *syncBuffer
}

func (s *CommandTestSuite) SetupTest() {
	s.central = testutils.NewFakeCentral()
	s.originalCentral = newCentral
	newCentral = func(*logrus.Logger) (device.Central, func(), error) {
		return s.central, func() {}, nil
	}

	resetFlags()
}

func (s *CommandTestSuite) TearDownTest() {
	newCentral = s.originalCentral
}

// resetFlags restores the package-level flag variables between runs; cobra
// keeps values from the previous Execute.
func resetFlags() {
	for _, name := range []string{"config", "log-level"} {
		_ = rootCmd.PersistentFlags().Set(name, "")
	}
	_ = rootCmd.PersistentFlags().Set("verbose", "false")

	scanAll, scanJSON = false, false
	scanDuration = 10 * time.Second
	inspectJSON = false
	decodeProbes = 0
	runListen, runUnit = "", ""
}

// ExecuteCommand runs the root command with args and returns stdout. Logs and
// progress go to s.stderr.
func (s *CommandTestSuite) ExecuteCommand(ctx context.Context, args ...string) (string, error) {
	out := new(bytes.Buffer)
	s.stderr = &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(s.stderr)
	rootCmd.SetArgs(args)
	// cobra only hands the context to subcommands that have none yet
	for _, sub := range rootCmd.Commands() {
		sub.SetContext(ctx)
	}
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func (s *CommandTestSuite) execute(args ...string) (string, error) {
	return s.ExecuteCommand(context.Background(), args...)
}
