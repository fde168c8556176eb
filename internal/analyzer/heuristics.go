package analyzer

import (
	"image"

	"github.com/maheshrc27/clippost/internal/models"
)

const (
	edgeStrongThreshold = 200
	edgeWeakThreshold   = 100

	textBinaryThreshold = 150
	textMinBoxes        = 3
)

// grayPlane converts an image to an 8-bit luma plane.
func grayPlane(img image.Image) ([]uint8, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[y*w+x] = uint8(lum)
		}
	}
	return gray, w, h
}

// brightness is the mean luma normalized to [0, 1].
func brightness(gray []uint8) float64 {
	if len(gray) == 0 {
		return 0
	}
	var sum float64
	for _, v := range gray {
		sum += float64(v)
	}
	return sum / float64(len(gray)) / 255
}

// meanColors averages each channel over the whole frame, normalized to [0, 1].
func meanColors(img image.Image) models.ColorMeans {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return models.ColorMeans{}
	}

	var rSum, gSum, bSum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += float64(r >> 8)
			gSum += float64(g >> 8)
			bSum += float64(b >> 8)
		}
	}

	n := float64(w*h) * 255
	return models.ColorMeans{R: rSum / n, G: gSum / n, B: bSum / n}
}

// edgeDensity runs a Sobel pass with hysteresis thresholds and returns the
// fraction of pixels classified as edges. Weak responses count only when they
// touch a strong one.
func edgeDensity(gray []uint8, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}

	blurred := boxBlur(gray, w, h)

	mag := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -int(blurred[(y-1)*w+x-1]) + int(blurred[(y-1)*w+x+1]) +
				-2*int(blurred[y*w+x-1]) + 2*int(blurred[y*w+x+1]) +
				-int(blurred[(y+1)*w+x-1]) + int(blurred[(y+1)*w+x+1])
			gy := -int(blurred[(y-1)*w+x-1]) - 2*int(blurred[(y-1)*w+x]) - int(blurred[(y-1)*w+x+1]) +
				int(blurred[(y+1)*w+x-1]) + 2*int(blurred[(y+1)*w+x]) + int(blurred[(y+1)*w+x+1])
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			mag[y*w+x] = float64(gx + gy)
		}
	}

	strong := make([]bool, w*h)
	for i, m := range mag {
		strong[i] = m >= edgeStrongThreshold
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			switch {
			case strong[i]:
				edges++
			case mag[i] >= edgeWeakThreshold && hasStrongNeighbor(strong, w, x, y):
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

func hasStrongNeighbor(strong []bool, w, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if strong[(y+dy)*w+x+dx] {
				return true
			}
		}
	}
	return false
}

func boxBlur(gray []uint8, w, h int) []uint8 {
	out := make([]uint8, len(gray))
	copy(out, gray)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sum := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(gray[(y+dy)*w+x+dx])
				}
			}
			out[y*w+x] = uint8(sum / 9)
		}
	}
	return out
}

// detectTextRegions looks for dark connected components with text-like
// bounding boxes: wider than tall and within plausible glyph-run size limits.
// A frame counts as having text when more than textMinBoxes such regions
// survive.
func detectTextRegions(gray []uint8, w, h int) (int, bool) {
	if w == 0 || h == 0 {
		return 0, false
	}

	fg := make([]bool, w*h)
	for i, v := range gray {
		fg[i] = v < textBinaryThreshold
	}
	fg = dilate(fg, w, h)

	visited := make([]bool, w*h)
	boxes := 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !fg[i] || visited[i] {
				continue
			}

			minX, minY, maxX, maxY := floodComponent(fg, visited, w, h, x, y)
			bw, bh := maxX-minX+1, maxY-minY+1
			if bw > 10 && bw < 300 && bh > 10 && bh < 100 && bw > bh {
				boxes++
			}
		}
	}
	return boxes, boxes > textMinBoxes
}

func dilate(fg []bool, w, h int) []bool {
	out := make([]bool, len(fg))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !fg[y*w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny >= 0 && ny < h && nx >= 0 && nx < w {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// floodComponent marks one 4-connected component visited and returns its
// bounding box.
func floodComponent(fg, visited []bool, w, h, startX, startY int) (minX, minY, maxX, maxY int) {
	minX, minY, maxX, maxY = startX, startY, startX, startY
	stack := []int{startY*w + startX}
	visited[startY*w+startX] = true

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w

		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}

		for _, d := range [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			ni := ny*w + nx
			if fg[ni] && !visited[ni] {
				visited[ni] = true
				stack = append(stack, ni)
			}
		}
	}
	return minX, minY, maxX, maxY
}
