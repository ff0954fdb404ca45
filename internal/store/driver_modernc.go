//go:build !(sqlite_vec && cgo)

package store

import (
	"database/sql/driver"
	"fmt"

	sqlite "modernc.org/sqlite"
)

const driverName = "sqlite"

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func init() {
	// Pure-Go stand-in for sqlite-vec's vec_distance_cosine.
	if err := sqlite.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosine); err != nil {
		panic(err)
	}
}

func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := blobArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := blobArg(args[1])
	if err != nil {
		return nil, err
	}
	return cosineDistance(a, b)
}

func blobArg(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case []byte:
		return decodeVector(x)
	case string:
		return decodeVector([]byte(x))
	default:
		return nil, fmt.Errorf("vec_distance_cosine: unsupported type %T", v)
	}
}
