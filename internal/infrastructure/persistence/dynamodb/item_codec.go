package dynamodb

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// itemWriter builds an item, skipping empty optional strings so that
// sparse attributes stay absent instead of holding "".
type itemWriter map[string]types.AttributeValue

func (w itemWriter) str(name, value string) {
	w[name] = &types.AttributeValueMemberS{Value: value}
}

func (w itemWriter) optStr(name, value string) {
	if value != "" {
		w.str(name, value)
	}
}

func (w itemWriter) num(name string, value int64) {
	w[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)}
}

func (w itemWriter) flag(name string, value bool) {
	w[name] = &types.AttributeValueMemberBOOL{Value: value}
}

func (w itemWriter) millis(name string, t time.Time) {
	w.num(name, t.UnixMilli())
}

// itemReader decodes attributes and remembers the first required one that is
// missing or malformed; optional reads never fail.
type itemReader struct {
	item map[string]types.AttributeValue
	err  error
}

func (r *itemReader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *itemReader) str(name string) string {
	value, ok := r.item[name].(*types.AttributeValueMemberS)
	if !ok || value.Value == "" {
		r.fail("attribute %s is missing or not a string", name)
		return ""
	}
	return value.Value
}

func (r *itemReader) optStr(name string) string {
	if value, ok := r.item[name].(*types.AttributeValueMemberS); ok {
		return value.Value
	}
	return ""
}

func (r *itemReader) parseNum(name string) (int64, bool) {
	value, ok := r.item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func (r *itemReader) optNum(name string) int64 {
	n, _ := r.parseNum(name)
	return n
}

func (r *itemReader) millis(name string) time.Time {
	n, ok := r.parseNum(name)
	if !ok {
		r.fail("attribute %s is missing or not a number", name)
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}

func (r *itemReader) flag(name string) bool {
	value, ok := r.item[name].(*types.AttributeValueMemberBOOL)
	return ok && value.Value
}
