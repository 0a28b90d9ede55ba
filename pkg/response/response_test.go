package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
	"github.com/noah-isme/atis-gateway/pkg/listquery"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestViewStatusFollowsState(t *testing.T) {
	st := listquery.NewState(20)
	cases := map[string]struct {
		view   listquery.View[int]
		status int
	}{
		"ready":     {listquery.Ready([]int{1}, listquery.Reconcile(st.Page, nil, 1), st, listquery.Capabilities{}), http.StatusOK},
		"empty":     {listquery.Ready[int](nil, listquery.Reconcile(st.Page, nil, 0), st, listquery.Capabilities{}), http.StatusOK},
		"forbidden": {listquery.Failed[int](appErrors.ErrForbidden, st, listquery.Capabilities{}), http.StatusForbidden},
		"error":     {listquery.Failed[int](appErrors.ErrUpstreamUnavailable, st, listquery.Capabilities{}), http.StatusBadGateway},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			View(c, tc.view, nil)
			assert.Equal(t, tc.status, w.Code)

			var body struct {
				Data struct {
					State string `json:"state"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, name, body.Data.State)
		})
	}
}

func TestErrorDefaultsToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAttachment(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Attachment(c, "report.csv", "text/csv", []byte("a,b"))
	assert.Equal(t, `attachment; filename="report.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b", w.Body.String())
}
