package config

import (
	"reflect"
	"strings"
)

// storeEnvKeys lists the store-specific keys that live in free-form maps
// and are therefore invisible to the struct walk in envKeys.
var storeEnvKeys = []string{
	"blob.filesystem.path",
	"blob.filesystem.dir_perm",
	"blob.filesystem.file_perm",
	"blob.s3.region",
	"blob.s3.bucket",
	"blob.s3.key_prefix",
	"blob.s3.endpoint",
	"blob.s3.access_key_id",
	"blob.s3.secret_access_key",
	"blob.s3.part_size",
	"blob.s3.max_retries",
	"blob.s3.force_path_style",
	"metadata.badger.db_path",
	"metadata.badger.block_cache_size_mb",
	"metadata.badger.index_cache_size_mb",
	"metadata.postgres.dsn",
	"metadata.postgres.max_conns",
	"metadata.postgres.min_conns",
	"metadata.postgres.connect_timeout",
	"metadata.postgres.auto_migrate",
}

// envKeys returns every configuration key that can be set through a
// DITTOBOX_* environment variable, e.g. adapters.http.session_secret maps
// to DITTOBOX_ADAPTERS_HTTP_SESSION_SECRET.
func envKeys() []string {
	keys := collectKeys(reflect.TypeOf(Config{}), "")
	return append(keys, storeEnvKeys...)
}

// collectKeys walks the mapstructure tags of t and returns the dotted paths
// of its scalar leaves.
func collectKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch field.Type.Kind() {
		case reflect.Struct:
			keys = append(keys, collectKeys(field.Type, key)...)
		case reflect.Map:
			// Free-form store sections are listed in storeEnvKeys
		default:
			keys = append(keys, key)
		}
	}
	return keys
}
