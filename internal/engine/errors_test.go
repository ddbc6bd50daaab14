package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chrispahm/gdx-viewer/internal/errs"
)

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, classify(nil))
}

func TestClassify_Fatal(t *testing.T) {
	err := classify(errs.New("Error: database has been invalidated because of a previous fatal error"))
	assert.Equal(t, errs.KindFatalEngine, errs.GetKind(err))
}

func TestClassify_Transient(t *testing.T) {
	err := classify(errs.New("syntax error near SELCT"))
	assert.Equal(t, errs.KindTransientEngine, errs.GetKind(err))
}
