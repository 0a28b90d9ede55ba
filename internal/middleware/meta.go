package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/atis-gateway/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

type responseMeta struct {
	started time.Time
	fields  map[string]interface{}
}

// WithResponseMeta starts collecting response metadata for the request.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), fields: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit records whether the payload came from the query cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := metaFrom(c); meta != nil {
		meta.fields[cacheHitKey] = hit
	}
}

// ExtractMeta snapshots the metadata for the response envelope. It returns nil
// outside WithResponseMeta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaFrom(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.fields)+2)
	for k, v := range meta.fields {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(meta.started).Milliseconds()
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaFrom(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	if v, exists := c.Get(responseMetaKey); exists {
		if meta, ok := v.(*responseMeta); ok {
			return meta
		}
	}
	return nil
}
