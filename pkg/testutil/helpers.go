// Package testutil provides common fixtures for testing.
package testutil

import (
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/manifest"
)

// Config returns default configuration with a smaller trial count and a
// fixed seed so tests stay fast and reproducible.
func Config() *config.Configuration {
	conf := config.Default()
	conf.Simulation.Trials = 600
	conf.Simulation.Workers = 3
	conf.Simulation.Seed = 42
	conf.Acquisition.BuyerPremium = 0.1
	conf.Acquisition.SalesTax = 0
	conf.Acquisition.Freight = 0
	conf.Optimizer.Min = 10
	conf.Optimizer.Max = 1000
	conf.Optimizer.Tolerance = 1
	conf.Optimizer.ROITarget = 1.25
	conf.Optimizer.RiskThreshold = 0.8
	conf.Optimizer.CashFloor = 0
	return conf
}

// Item returns a well-evidenced manifest line that passes the gate.
func Item(id, title, brand string, mean, stdDev float64, quantity int) manifest.RawItem {
	return manifest.RawItem{
		ID:               id,
		Title:            title,
		Brand:            brand,
		Condition:        "new",
		Category:         "electronics",
		Quantity:         manifest.Num(float64(quantity)),
		CompCount:        manifest.Num(6),
		SecondarySignals: []string{manifest.SignalOfferDepth},
		Observations: []manifest.Observation{
			{Source: "ebay_sold", Mean: manifest.Num(mean), StdDev: manifest.Num(stdDev), SampleSize: manifest.Num(6)},
		},
	}
}

// TwoItemLot returns a small lot whose items both enter the simulation.
func TwoItemLot() *manifest.Lot {
	return &manifest.Lot{
		Name:  "two-item",
		Month: manifest.Num(3),
		Items: []manifest.RawItem{
			Item("sku-1", "Sony WH-1000XM4 Headphones", "Sony", 100, 20, 2),
			Item("sku-2", "Anker PowerCore 20000", "Anker", 60, 10, 1),
		},
	}
}

// DeferredLot returns a lot where every item fails the evidence gate.
func DeferredLot() *manifest.Lot {
	return &manifest.Lot{
		Name: "deferred",
		Items: []manifest.RawItem{
			{
				Title:            "Lot of assorted damaged parts",
				Condition:        "Unknown",
				CompCount:        manifest.Num(4),
				SecondarySignals: []string{manifest.SignalOfferDepth},
				Observations: []manifest.Observation{
					{Source: "ebay_sold", Mean: manifest.Num(40), SampleSize: manifest.Num(4)},
				},
			},
		},
	}
}
