package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestValidateSingleStdinFileSource(t *testing.T) {
	v := viper.New()
	v.Set("database.dsn_file", "@-")
	v.Set("database.password_file", "/tmp/password")
	assert.NoError(t, validateSingleStdinFileSource(v))

	v.Set("database.password_file", " @- ")
	err := validateSingleStdinFileSource(v)
	assert.ErrorContains(t, err, "database.dsn_file, database.password_file")
}
