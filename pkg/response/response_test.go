package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"wagerledger/internal/apperr"

	"github.com/gin-gonic/gin"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: apperr.New(apperr.KindValidation, "bad"), want: CodeParamError},
		{err: apperr.New(apperr.KindInsufficientFunds, "poor"), want: CodeInsufficientFunds},
		{err: fmt.Errorf("wrapped: %w", apperr.New(apperr.KindForbidden, "no")), want: CodeForbidden},
		{err: apperr.New(apperr.KindInternal, "boom"), want: CodeServerError},
		{err: errors.New("plain"), want: CodeServerError},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFromErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FromError(c, errors.New("dial tcp 10.0.0.1: refused"))

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != 200 || resp.Code != CodeServerError || resp.Message != "服务器内部错误" {
		t.Fatalf("unexpected response %d %+v", w.Code, resp)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	FromError(c, apperr.New(apperr.KindSuspended, "账户已被冻结"))
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != CodeAccountSuspended || resp.Message != "账户已被冻结" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
