package reactor

// FissionResult is what the fuel rods released for one tick.
type FissionResult struct {
	FuelRods    int     `json:"fuel_rods"`
	Share       float64 `json:"share"`
	Energy      float64 `json:"energy"`
	Secondaries float64 `json:"secondaries"`
}

// FuelEnergyConverter spreads the population evenly over the fuel rods and
// collects their energy and secondary neutrons. The secondaries become the
// whole next-tick population.
type FuelEnergyConverter struct{}

// Convert processes one tick of rod hits. With no fuel rods nothing is
// released and no division happens.
func (FuelEnergyConverter) Convert(population float64, fuel []*Rod) FissionResult {
	res := FissionResult{FuelRods: len(fuel)}
	if len(fuel) == 0 || population <= 0 {
		return res
	}
	res.Share = population / float64(len(fuel))
	for _, rod := range fuel {
		energy, secondaries := rod.processHit(res.Share)
		res.Energy += energy
		res.Secondaries += secondaries
	}
	return res
}
