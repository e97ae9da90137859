// SPDX-License-Identifier: MIT

package cfg

import (
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	defaultYAMLConfigurationFilePath = "/etc/nostrpool/nostrpool.yaml"
)

var (
	yamlConfigurationFilePathInitializer = new(sync.Once)
	yamlConfigurationFilePath            string
)

func MustInit(absoluteCfgPaths ...string) {
	yamlConfigurationFilePathInitializer.Do(func() { mustInit(absoluteCfgPaths...) })
}

func mustInit(absoluteCfgPaths ...string) {
	for _, path := range absoluteCfgPaths {
		if readConfigFile(path) {
			return
		}
	}
	if len(absoluteCfgPaths) > 0 {
		log.Printf("WARN: none of %+v were readable, falling back to `%v`", absoluteCfgPaths, defaultYAMLConfigurationFilePath)
	}
	if !readConfigFile(defaultYAMLConfigurationFilePath) {
		yamlConfigurationFilePath = defaultYAMLConfigurationFilePath
		log.Printf("WARN: could not read `%v`, starting with empty configuration", yamlConfigurationFilePath)
	}
}

func readConfigFile(path string) bool {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return false
	}
	yamlConfigurationFilePath = path

	return true
}

// MustGet deserializes the yaml key matching the caller's package path into
// the given struct.
func MustGet[T any]() *T {
	var t T
	key := strings.Replace(reflect.TypeOf(t).PkgPath(), "github.com/nostrpool/nostrpool/", "", 1)
	if err := viper.UnmarshalKey(key, &t); err != nil {
		log.Panic(errors.Wrapf(err, "could not deserialise `%v` yaml key `%v` into %+v", yamlConfigurationFilePath, key, t))
	}

	return &t
}
