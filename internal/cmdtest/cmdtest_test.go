package cmdtest

import (
	"testing"
)

func TestMain(m *testing.M) {
	Main(m)
}

func TestBuild(t *testing.T) {
	Run(t, "testdata/build")
}

func TestEntries(t *testing.T) {
	Run(t, "testdata/entries")
}

func TestPlan(t *testing.T) {
	Run(t, "testdata/plan")
}
