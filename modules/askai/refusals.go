package askai

var toppings = []string{
	"tomatoes",
	"lettuce",
	"ham",
	"chicken",
	"cheese",
	"mayonaise",
	"pickles",
	"pumpernickel",
	"tomaten chutney",
	"hot italian giardiniera",
	"egg escabeche",
	"goat cheese",
	"philly cheese steak",
	"corned beef",
	"tarragon yoghurt dressing",
	"turkey argula",
}

// refusals answers actors who are not whitelisted for paid commands.
var refusals = func() []string {
	lines := []string{
		"thou may not take thy toothpick",
		"no",
		"yo m",
		"mask off",
	}
	for _, topping := range toppings {
		lines = append(lines, "u may not taste my delicious "+topping)
	}

	return lines
}()

func refusal(intN func(n int) int) string {
	return refusals[intN(len(refusals))]
}
