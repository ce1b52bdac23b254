// Package harness provides conformance testing for nestql object queries.
//
// A scenario loads a CUE schema, seeds an in-memory SQLite database from
// SQL fixtures, runs one request document through the resolver, compiler
// and assembler, and checks the nested result (or the error category)
// against the expectation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: brewery_beers
//	description: "Breweries with their beers"
//	schema: ../schema          # CUE directory, relative to the scenario file
//	fixtures:
//	  - ../fixtures.sql
//	setup: |
//	  INSERT INTO beer (id, name, abv_tenths, brewery_id) VALUES (99, 'Radler', 20, 4);
//	request:
//	  type: Brewery
//	  select:
//	    - name
//	    - beers: [name]
//	expect:
//	  result:
//	    - name: Heineken
//	      beers: [{name: IPA}, {name: Lager}]
//
// An expectation names either a result or an error category:
// configuration, unsupported_operation or assembly_invariant.
//
// # Deterministic Testing
//
// Every scenario runs against a fresh database with a fixed compile
// session ID (scenario.session_id, or testutil's default), so logs and
// golden snapshots are identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/brewery_beers.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
