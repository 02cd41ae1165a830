// Package blur implements the stack blur used to soften placeholder
// mosaics, plus the worker that runs it off the request path.
package blur

import (
	"image"
)

// maxRadius is the largest radius the fixed-point tables cover.
const maxRadius = 254

type stackCell struct {
	r, g, b, a int
}

// Blur applies a stack blur of the given radius to img in place. A
// radius below 1 leaves the image untouched; radii beyond the table
// range are clamped.
func Blur(img *image.RGBA, radius int) {
	if img == nil || radius < 1 {
		return
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if width < 1 || height < 1 {
		return
	}
	offset := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y)
	blurRGBA(img.Pix[offset:], width, height, img.Stride, radius)
}

// blurRGBA runs two separable passes over the pixel buffer. Each pass
// slides a triangular-weighted window ("stack") along a row or column,
// updating the weighted sum incrementally and dividing by the window
// weight with the precomputed multiply/shift tables. Pixels past the
// edges repeat the edge value.
func blurRGBA(pix []uint8, width, height, stride, radius int) {
	div := radius*2 + 1
	widthMinus1 := width - 1
	heightMinus1 := height - 1
	radiusPlus1 := radius + 1
	sumFactor := radiusPlus1 * (radiusPlus1 + 1) / 2

	mulSum := int(mulTable[radius])
	shgSum := shgTable[radius]

	stack := make([]stackCell, div)

	// Horizontal pass.
	for y := 0; y < height; y++ {
		yi := y * stride

		pr := int(pix[yi])
		pg := int(pix[yi+1])
		pb := int(pix[yi+2])
		pa := int(pix[yi+3])

		rOut := radiusPlus1 * pr
		gOut := radiusPlus1 * pg
		bOut := radiusPlus1 * pb
		aOut := radiusPlus1 * pa

		rSum := sumFactor * pr
		gSum := sumFactor * pg
		bSum := sumFactor * pb
		aSum := sumFactor * pa

		var rIn, gIn, bIn, aIn int

		for i := 0; i < radiusPlus1; i++ {
			stack[i] = stackCell{pr, pg, pb, pa}
		}

		for i := 1; i <= radius; i++ {
			x := i
			if x > widthMinus1 {
				x = widthMinus1
			}
			p := yi + x*4
			pr = int(pix[p])
			pg = int(pix[p+1])
			pb = int(pix[p+2])
			pa = int(pix[p+3])

			rbs := radiusPlus1 - i
			stack[radius+i] = stackCell{pr, pg, pb, pa}
			rSum += pr * rbs
			gSum += pg * rbs
			bSum += pb * rbs
			aSum += pa * rbs

			rIn += pr
			gIn += pg
			bIn += pb
			aIn += pa
		}

		inIdx := 0
		outIdx := radiusPlus1

		for x := 0; x < width; x++ {
			pix[yi] = uint8((rSum * mulSum) >> shgSum)
			pix[yi+1] = uint8((gSum * mulSum) >> shgSum)
			pix[yi+2] = uint8((bSum * mulSum) >> shgSum)
			pix[yi+3] = uint8((aSum * mulSum) >> shgSum)

			rSum -= rOut
			gSum -= gOut
			bSum -= bOut
			aSum -= aOut

			rOut -= stack[inIdx].r
			gOut -= stack[inIdx].g
			bOut -= stack[inIdx].b
			aOut -= stack[inIdx].a

			xNew := x + radiusPlus1
			if xNew > widthMinus1 {
				xNew = widthMinus1
			}
			p := y*stride + xNew*4
			pr = int(pix[p])
			pg = int(pix[p+1])
			pb = int(pix[p+2])
			pa = int(pix[p+3])

			stack[inIdx] = stackCell{pr, pg, pb, pa}
			rIn += pr
			gIn += pg
			bIn += pb
			aIn += pa

			rSum += rIn
			gSum += gIn
			bSum += bIn
			aSum += aIn

			inIdx++
			if inIdx == div {
				inIdx = 0
			}

			out := stack[outIdx]
			rOut += out.r
			gOut += out.g
			bOut += out.b
			aOut += out.a

			rIn -= out.r
			gIn -= out.g
			bIn -= out.b
			aIn -= out.a

			outIdx++
			if outIdx == div {
				outIdx = 0
			}

			yi += 4
		}
	}

	// Vertical pass.
	for x := 0; x < width; x++ {
		yi := x * 4

		pr := int(pix[yi])
		pg := int(pix[yi+1])
		pb := int(pix[yi+2])
		pa := int(pix[yi+3])

		rOut := radiusPlus1 * pr
		gOut := radiusPlus1 * pg
		bOut := radiusPlus1 * pb
		aOut := radiusPlus1 * pa

		rSum := sumFactor * pr
		gSum := sumFactor * pg
		bSum := sumFactor * pb
		aSum := sumFactor * pa

		var rIn, gIn, bIn, aIn int

		for i := 0; i < radiusPlus1; i++ {
			stack[i] = stackCell{pr, pg, pb, pa}
		}

		for i := 1; i <= radius; i++ {
			row := i
			if row > heightMinus1 {
				row = heightMinus1
			}
			p := row*stride + x*4
			pr = int(pix[p])
			pg = int(pix[p+1])
			pb = int(pix[p+2])
			pa = int(pix[p+3])

			rbs := radiusPlus1 - i
			stack[radius+i] = stackCell{pr, pg, pb, pa}
			rSum += pr * rbs
			gSum += pg * rbs
			bSum += pb * rbs
			aSum += pa * rbs

			rIn += pr
			gIn += pg
			bIn += pb
			aIn += pa
		}

		inIdx := 0
		outIdx := radiusPlus1
		yi = x * 4

		for y := 0; y < height; y++ {
			pix[yi] = uint8((rSum * mulSum) >> shgSum)
			pix[yi+1] = uint8((gSum * mulSum) >> shgSum)
			pix[yi+2] = uint8((bSum * mulSum) >> shgSum)
			pix[yi+3] = uint8((aSum * mulSum) >> shgSum)

			rSum -= rOut
			gSum -= gOut
			bSum -= bOut
			aSum -= aOut

			rOut -= stack[inIdx].r
			gOut -= stack[inIdx].g
			bOut -= stack[inIdx].b
			aOut -= stack[inIdx].a

			row := y + radiusPlus1
			if row > heightMinus1 {
				row = heightMinus1
			}
			p := row*stride + x*4
			pr = int(pix[p])
			pg = int(pix[p+1])
			pb = int(pix[p+2])
			pa = int(pix[p+3])

			stack[inIdx] = stackCell{pr, pg, pb, pa}
			rIn += pr
			gIn += pg
			bIn += pb
			aIn += pa

			rSum += rIn
			gSum += gIn
			bSum += bIn
			aSum += aIn

			inIdx++
			if inIdx == div {
				inIdx = 0
			}

			out := stack[outIdx]
			rOut += out.r
			gOut += out.g
			bOut += out.b
			aOut += out.a

			rIn -= out.r
			gIn -= out.g
			bIn -= out.b
			aIn -= out.a

			outIdx++
			if outIdx == div {
				outIdx = 0
			}

			yi += stride
		}
	}
}
