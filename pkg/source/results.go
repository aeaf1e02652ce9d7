package source

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

// TableRaceResults is the name of the flattened race result table
const TableRaceResults = "race_results"

// ResultHeader lists the columns of the flattened race result table
var ResultHeader = []string{
	"season", "round", "session_type", "race_name", "date",
	"driver_id", "driver_name", "constructor",
	"grid", "position", "position_order", "points", "status", "fastest_lap_time",
}

var (
	racesPaths = []jp.Expr{
		jp.MustParseString("$.MRData.RaceTable.Races[*]"),
		jp.MustParseString("$.Races[*]"),
	}
	resultsPath     = jp.MustParseString("$.Results[*]")
	driverIDPath    = jp.MustParseString("$.Driver.driverId")
	givenNamePath   = jp.MustParseString("$.Driver.givenName")
	familyNamePath  = jp.MustParseString("$.Driver.familyName")
	constructorPath = jp.MustParseString("$.Constructor.name")
	fastestLapPath  = jp.MustParseString("$.FastestLap.Time.time")
)

// FlattenResults converts an Ergast style race result document into one
// record per classified driver.
func FlattenResults(data []byte) (*model.RawTable, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse race results: %w", err)
	}
	var races []any
	for _, p := range racesPaths {
		if races = p.Get(doc); len(races) > 0 {
			break
		}
	}
	ret := &model.RawTable{Name: TableRaceResults, Header: ResultHeader}
	for _, race := range races {
		raceObj, ok := race.(map[string]any)
		if !ok {
			continue
		}
		for _, result := range resultsPath.Get(race) {
			resObj, ok := result.(map[string]any)
			if !ok {
				continue
			}
			ret.Records = append(ret.Records, flattenResult(raceObj, resObj))
		}
	}
	return ret, nil
}

func flattenResult(race, result map[string]any) []string {
	first := func(x jp.Expr) string {
		return text(x.First(result), "")
	}
	driverName := strings.TrimSpace(first(givenNamePath) + " " + first(familyNamePath))
	return []string{
		text(race["season"], ""),
		text(race["round"], ""),
		string(model.SessionRace),
		text(race["raceName"], ""),
		text(race["date"], ""),
		first(driverIDPath),
		driverName,
		first(constructorPath),
		text(result["grid"], "0"),
		text(result["position"], ""),
		text(result["positionOrder"], "-1"),
		text(result["points"], "0.0"),
		text(result["status"], ""),
		first(fastestLapPath),
	}
}

// text renders a scalar json value, def is used for missing values
func text(v any, def string) string {
	switch val := v.(type) {
	case nil:
		return def
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return oj.JSON(val)
	}
}

// LoadResultsDir flattens all *.json files in dir, sorted by file name
func LoadResultsDir(dir string) (*model.RawTable, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	ret := &model.RawTable{Name: TableRaceResults, Header: ResultHeader}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		t, err := FlattenResults(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		ret.Records = append(ret.Records, t.Records...)
	}
	return ret, nil
}
