package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"User", "users"},
		{"BlogPost", "blog_posts"},
		{"Person", "people"},
		{"Category", "categories"},
		{"HTTPRequestLog", "http_request_logs"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.CollectionName(tt.input))
		})
	}
}

func TestCollectionName_Overrides(t *testing.T) {
	namer := New(Config{PluralOverrides: map[string]string{"status": "statuses"}})
	assert.Equal(t, "order_statuses", namer.CollectionName("OrderStatus"))
}

func TestModelName(t *testing.T) {
	namer := Default()
	assert.Equal(t, "BlogPost", namer.ModelName("blog_posts"))
	assert.Equal(t, "Person", namer.ModelName("people"))
	assert.Equal(t, "User", namer.ModelName("users"))
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"userName", "user_name"},
		{"UserProfile", "user_profile"},
		{"APIKey", "api_key"},
		{"already_snake", "already_snake"},
		{"v2Endpoint", "v2_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToSnakeCase(tt.input))
		})
	}
}
