package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"talent-match/internal/processor"
	"talent-match/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.ErrEmptyQuery, http.StatusBadRequest},
		{processor.ErrDescriptionRequired, http.StatusBadRequest},
		{fmt.Errorf("%w: %q", processor.ErrInvalidStatus, "x"), http.StatusBadRequest},
		{validator.New().Struct(processor.CreateJobRequest{}), http.StatusBadRequest},
		{types.ErrJobNotFound, http.StatusNotFound},
		{fmt.Errorf("查询失败: %w", types.ErrCandidateNotFound), http.StatusNotFound},
		{types.NewPipelineError("", "embed", types.ErrEmbedding, "timeout"), http.StatusServiceUnavailable},
		{types.ErrIndexUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{processor.ErrComponentNotInit, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
