package imagery

import (
	"strconv"
	"time"

	"github.com/lox/afolu/internal/aoi"
)

// Node is one value in an Earth Engine expression graph.
type Node map[string]any

// Expression is the body of a value:compute request.
type Expression struct {
	Values map[string]Node `json:"values"`
	Result string          `json:"result"`
}

func NewExpression(root Node) Expression {
	return Expression{Values: map[string]Node{"0": root}, Result: "0"}
}

func Constant(v any) Node {
	return Node{"constantValue": v}
}

func Invoke(function string, args map[string]Node) Node {
	if args == nil {
		args = map[string]Node{}
	}
	return Node{"functionInvocationValue": map[string]any{
		"functionName": function,
		"arguments":    args,
	}}
}

func geometryNode(area *aoi.AOI) Node {
	function := "GeometryConstructors.Polygon"
	if area.IsMulti() {
		function = "GeometryConstructors.MultiPolygon"
	}
	return Invoke(function, map[string]Node{
		"coordinates": Constant(area.Coordinates()),
		"evenOdd":     Constant(true),
	})
}

func dateNode(t time.Time) Node {
	return Invoke("Date", map[string]Node{"value": Constant(t.Format(time.DateOnly))})
}

func image(function string, a, b Node) Node {
	return Invoke(function, map[string]Node{"image1": a, "image2": b})
}

func imageConstant(v float64) Node {
	return Invoke("Image.constant", map[string]Node{"value": Constant(v)})
}

func selectBand(img Node, band string) Node {
	return Invoke("Image.select", map[string]Node{
		"input":         img,
		"bandSelectors": Constant([]string{band}),
	})
}

func rename(img Node, name string) Node {
	return Invoke("Image.rename", map[string]Node{
		"input": img,
		"names": Constant([]string{name}),
	})
}

func filter(collection, f Node) Node {
	return Invoke("Collection.filter", map[string]Node{"collection": collection, "filter": f})
}

// sentinelCollection builds the filtered Sentinel-2 surface reflectance
// collection for a request.
func sentinelCollection(req Request) Node {
	col := Invoke("ImageCollection.load", map[string]Node{"id": Constant(SentinelCollection)})
	col = filter(col, Invoke("Filter.intersects", map[string]Node{
		"leftField":  Constant(".all"),
		"rightValue": geometryNode(req.AOI),
	}))
	col = filter(col, Invoke("Filter.dateRangeContains", map[string]Node{
		"leftValue": Invoke("DateRange", map[string]Node{
			"start": dateNode(req.Start),
			"end":   dateNode(req.End),
		}),
		"rightField": Constant("system:time_start"),
	}))
	col = filter(col, Invoke("Filter.lessThan", map[string]Node{
		"leftField":  Constant("CLOUDY_PIXEL_PERCENTAGE"),
		"rightValue": Constant(req.CloudCover),
	}))
	return col
}

// countExpression returns the number of scenes matching the request.
func countExpression(req Request) Expression {
	return NewExpression(Invoke("Collection.size", map[string]Node{
		"collection": sentinelCollection(req),
	}))
}

var compositeBands = []string{"B2", "B4", "B8", "B12"}

// indexExpression computes AOI-mean NDVI, EVI, LAI and NBR over the
// median composite, with reflectance scaled to 0-1.
func indexExpression(req Request) Expression {
	median := Invoke("ImageCollection.reduce", map[string]Node{
		"collection": sentinelCollection(req),
		"reducer":    Invoke("Reducer.median", nil),
	})
	medianNames := make([]string, len(compositeBands))
	for i, b := range compositeBands {
		medianNames[i] = b + "_median"
	}
	composite := Invoke("Image.select", map[string]Node{
		"input":         median,
		"bandSelectors": Constant(medianNames),
		"newNames":      Constant(compositeBands),
	})
	scaled := image("Image.divide", composite, imageConstant(ReflectanceScale))

	blue := selectBand(scaled, "B2")
	red := selectBand(scaled, "B4")
	nir := selectBand(scaled, "B8")

	ndvi := rename(Invoke("Image.normalizedDifference", map[string]Node{
		"input":     scaled,
		"bandNames": Constant([]string{"B8", "B4"}),
	}), "NDVI")

	// 2.5 * (NIR - RED) / (NIR + 6*RED - 7.5*BLUE + 1)
	numerator := image("Image.subtract", nir, red)
	denominator := image("Image.add",
		image("Image.subtract",
			image("Image.add", nir, image("Image.multiply", red, imageConstant(6))),
			image("Image.multiply", blue, imageConstant(7.5))),
		imageConstant(1))
	eviRaw := image("Image.multiply", image("Image.divide", numerator, denominator), imageConstant(2.5))
	evi := rename(eviRaw, "EVI")

	lai := rename(image("Image.min", image("Image.multiply", eviRaw, imageConstant(4)), imageConstant(8)), "LAI")

	nbr := rename(Invoke("Image.normalizedDifference", map[string]Node{
		"input":     scaled,
		"bandNames": Constant([]string{"B8", "B12"}),
	}), "NBR")

	stack := ndvi
	for _, band := range []Node{evi, lai, nbr} {
		stack = Invoke("Image.addBands", map[string]Node{"dstImg": stack, "srcImg": band})
	}

	return NewExpression(Invoke("Image.reduceRegion", map[string]Node{
		"image":     stack,
		"reducer":   Invoke("Reducer.mean", nil),
		"geometry":  geometryNode(req.AOI),
		"scale":     Constant(IndexScale),
		"maxPixels": Constant(MaxPixels),
	}))
}

// worldCoverImage loads the land-cover map for one year.
func worldCoverImage(year int) Node {
	col := Invoke("ImageCollection.load", map[string]Node{"id": Constant(worldCoverCollection(year))})
	col = filter(col, Invoke("Filter.equals", map[string]Node{
		"leftField":  Constant("system:index"),
		"rightValue": Constant(strconv.Itoa(year)),
	}))
	return selectBand(Invoke("Collection.first", map[string]Node{"collection": col}), "Map")
}

// changeExpression returns the mean and sum of pixels whose land-cover
// class differs between the two years.
func changeExpression(area *aoi.AOI, fromYear, toYear int) Expression {
	changed := image("Image.neq", worldCoverImage(toYear), worldCoverImage(fromYear))
	return NewExpression(Invoke("Image.reduceRegion", map[string]Node{
		"image": rename(changed, "Change"),
		"reducer": Invoke("Reducer.combine", map[string]Node{
			"reducer1":     Invoke("Reducer.mean", nil),
			"reducer2":     Invoke("Reducer.sum", nil),
			"sharedInputs": Constant(true),
		}),
		"geometry":  geometryNode(area),
		"scale":     Constant(LandCoverScale),
		"maxPixels": Constant(MaxPixels),
	}))
}
