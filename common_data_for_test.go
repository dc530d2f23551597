package keyedarchive

import (
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/appsworld/keyedarchive/cf"
)

// valueComparer lets cmp.Diff compare value trees structurally: numbers by
// value, dictionaries ordered.
var valueComparer = cmp.Comparer(cf.Equal)

func unum(v uint64) *cf.Number {
	return &cf.Number{Signed: false, Value: v}
}

func snum(v int64) *cf.Number {
	return &cf.Number{Signed: true, Value: uint64(v)}
}

func testDict(pairs ...interface{}) *cf.Dictionary {
	d := &cf.Dictionary{}
	for i := 0; i < len(pairs); i += 2 {
		if err := d.Append(pairs[i].(string), pairs[i+1].(cf.Value)); err != nil {
			panic(err)
		}
	}
	return d
}

// fixtureTree is one document covering every variant both readers share.
// fixtureAsBplist and fixtureAsXML are recordings of the same document in
// both encodings.
var fixtureTree = testDict(
	"intarray", cf.Array{
		unum(1), unum(8), unum(16), unum(32), unum(64),
		unum(2), unum(9), unum(17), unum(33), unum(65),
	},
	"floats", cf.Array{
		&cf.Real{Wide: false, Value: 32.0},
		&cf.Real{Wide: true, Value: 64.0},
	},
	"booleans", cf.Array{cf.Boolean(true), cf.Boolean(false)},
	"strings", cf.Array{cf.String("Hello, ASCII"), cf.String("Hello, 世界")},
	"data", cf.Data{1, 2, 3, 4},
	"date", cf.Date(time.Date(2013, 11, 27, 0, 34, 0, 0, time.UTC)),
)

var fixtureAsBplist = []byte{98, 112, 108, 105, 115, 116, 48, 48, 214, 1, 13, 17, 21, 25, 27, 2, 14, 18, 22, 26, 28, 88, 105, 110, 116, 97, 114, 114, 97, 121, 170, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 16, 1, 16, 8, 16, 16, 16, 32, 16, 64, 16, 2, 16, 9, 16, 17, 16, 33, 16, 65, 86, 102, 108, 111, 97, 116, 115, 162, 15, 16, 34, 66, 0, 0, 0, 35, 64, 80, 0, 0, 0, 0, 0, 0, 88, 98, 111, 111, 108, 101, 97, 110, 115, 162, 19, 20, 9, 8, 87, 115, 116, 114, 105, 110, 103, 115, 162, 23, 24, 92, 72, 101, 108, 108, 111, 44, 32, 65, 83, 67, 73, 73, 105, 0, 72, 0, 101, 0, 108, 0, 108, 0, 111, 0, 44, 0, 32, 78, 22, 117, 76, 84, 100, 97, 116, 97, 68, 1, 2, 3, 4, 84, 100, 97, 116, 101, 51, 65, 184, 69, 117, 120, 0, 0, 0, 8, 21, 30, 41, 43, 45, 47, 49, 51, 53, 55, 57, 59, 61, 68, 71, 76, 85, 94, 97, 98, 99, 107, 110, 123, 142, 147, 152, 157, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 29, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 166}

const xmlPreamble = `<?xml version="1.0" encoding="UTF-8"?><!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">`

var fixtureAsXML = xmlPreamble + `<plist version="1.0"><dict><key>intarray</key><array><integer>1</integer><integer>8</integer><integer>16</integer><integer>32</integer><integer>64</integer><integer>2</integer><integer>9</integer><integer>17</integer><integer>33</integer><integer>65</integer></array><key>floats</key><array><real>32</real><real>64</real></array><key>booleans</key><array><true></true><false></false></array><key>strings</key><array><string>Hello, ASCII</string><string>Hello, 世界</string></array><key>data</key><data>AQIDBA==</data><key>date</key><date>2013-11-27T00:34:00Z</date></dict></plist>`
